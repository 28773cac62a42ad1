package pool

import "context"

// Factory is the capability set the pool needs from its caller to create,
// prepare, and retire instances of T for a given key K. It is the only
// external collaborator the pool engine requires; monitoring, configuration
// loading, and logging storage are the caller's responsibility.
//
// No lock shared with Borrow, Return or Invalidate is held while a Factory
// method runs. The one exception is the evictor's own sweep lock, which is
// held for a whole sweep, including the Factory calls the sweep makes, and
// which only serialises sweeps. A Factory may block, acquire application
// locks, or perform I/O without deadlocking borrowers or returners.
type Factory[K comparable, T any] interface {
	// Make creates an instance for key. A failure is fatal to the borrow
	// that triggered the creation.
	Make(ctx context.Context, key K) (T, error)

	// Activate prepares a checked-out instance for use. A failure destroys
	// the instance; if the instance was just created, the failure is
	// surfaced to the caller, otherwise the borrow retries with another
	// instance.
	Activate(ctx context.Context, key K, obj T) error

	// Passivate resets an instance being returned to the pool. A failure
	// destroys the instance; the error is swallowed into the audit ring.
	Passivate(ctx context.Context, key K, obj T) error

	// Validate is a side-effect-free health check. Returning false destroys
	// the instance.
	Validate(ctx context.Context, key K, obj T) bool

	// Destroy releases any external resources held by obj. Errors are
	// swallowed into the audit ring; Destroy must not panic.
	Destroy(ctx context.Context, key K, obj T) error
}

// FactoryFuncs adapts plain functions to the Factory interface, the way a
// dispatch table would. Any nil func is treated as a no-op success (Validate
// defaults to true, the others default to returning nil).
type FactoryFuncs[K comparable, T any] struct {
	MakeFunc      func(ctx context.Context, key K) (T, error)
	ActivateFunc  func(ctx context.Context, key K, obj T) error
	PassivateFunc func(ctx context.Context, key K, obj T) error
	ValidateFunc  func(ctx context.Context, key K, obj T) bool
	DestroyFunc   func(ctx context.Context, key K, obj T) error
}

func (f FactoryFuncs[K, T]) Make(ctx context.Context, key K) (T, error) {
	if f.MakeFunc == nil {
		var zero T
		return zero, nil
	}
	return f.MakeFunc(ctx, key)
}

func (f FactoryFuncs[K, T]) Activate(ctx context.Context, key K, obj T) error {
	if f.ActivateFunc == nil {
		return nil
	}
	return f.ActivateFunc(ctx, key, obj)
}

func (f FactoryFuncs[K, T]) Passivate(ctx context.Context, key K, obj T) error {
	if f.PassivateFunc == nil {
		return nil
	}
	return f.PassivateFunc(ctx, key, obj)
}

func (f FactoryFuncs[K, T]) Validate(ctx context.Context, key K, obj T) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(ctx, key, obj)
}

func (f FactoryFuncs[K, T]) Destroy(ctx context.Context, key K, obj T) error {
	if f.DestroyFunc == nil {
		return nil
	}
	return f.DestroyFunc(ctx, key, obj)
}
