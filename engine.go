package pool

import (
	"context"
	"math"
	"sort"
	"time"
)

// Borrow checks out an instance for key, using the pool's configured
// MaxWait and BlockWhenExhausted policy.
func (p *Pool[K, T]) Borrow(ctx context.Context, key K) (T, error) {
	cfg := p.loadConfig()
	return p.borrow(ctx, key, cfg, cfg.MaxWait)
}

// BorrowWait is Borrow with an explicit wait bound overriding
// Config.MaxWait for this call only. A negative maxWait waits
// indefinitely.
func (p *Pool[K, T]) BorrowWait(ctx context.Context, key K, maxWait time.Duration) (T, error) {
	cfg := p.loadConfig()
	return p.borrow(ctx, key, cfg, maxWait)
}

// borrow is a retry loop: each iteration registers interest in key's
// sub-pool exactly once and is responsible for deregistering it exactly
// once, on every exit path, before the next iteration (or the final
// return).
func (p *Pool[K, T]) borrow(ctx context.Context, key K, cfg Config, maxWait time.Duration) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, newPoolError(ErrorTypeClosed, key, "borrow on closed pool", nil)
	}

	start := time.Now()
	for {
		sp := p.registry.register(key)

		w, ok := sp.idle.pollFirst()
		createdHere := false

		if !ok {
			nw, err := p.create(ctx, key, sp)
			switch {
			case err != nil:
				p.registry.deregister(key)
				return zero, newPoolError(ErrorTypeFactoryMake, key, "factory.Make failed", err)
			case nw != nil:
				w, ok, createdHere = nw, true, true
			}
		}

		if !ok {
			if !cfg.BlockWhenExhausted {
				p.registry.deregister(key)
				return zero, newPoolError(ErrorTypeExhausted, key, "pool exhausted, not blocking", nil)
			}
			item, got, interrupted := sp.idle.pollFirstTimeout(maxWait)
			if !got {
				p.registry.deregister(key)
				if interrupted {
					return zero, newPoolError(ErrorTypeClosed, key, "pool closed while waiting", nil)
				}
				return zero, newPoolError(ErrorTypeExhausted, key, "timed out waiting for an instance", nil)
			}
			w = item
			ok = true
		}

		if !w.allocate() {
			// Raced with the evictor (wrapper was mid eviction-test);
			// the wrapper will resurface at the deque's head. Discard
			// this attempt and retry.
			p.registry.deregister(key)
			continue
		}

		obj := w.getObject()

		if err := p.factory.Activate(ctx, key, obj); err != nil {
			p.destroyWrapper(ctx, key, sp, w, true)
			p.registry.deregister(key)
			if createdHere {
				return zero, newPoolError(ErrorTypeFactoryActivate, key, "unable to activate newly created instance", err)
			}
			continue
		}

		if cfg.TestOnBorrow {
			if !p.factory.Validate(ctx, key, obj) {
				p.destroyWrapper(ctx, key, sp, w, true)
				p.destroyedByBorrowValidation.Add(1)
				if p.metrics != nil {
					p.metrics.destroyedByValidation.WithLabelValues(keyLabel(key)).Inc()
				}
				p.registry.deregister(key)
				if createdHere {
					return zero, newPoolError(ErrorTypeFactoryValidate, key, "unable to validate newly created instance", nil)
				}
				continue
			}
		}

		p.registry.deregister(key)
		p.borrowedCount.Add(1)
		if p.metrics != nil {
			p.metrics.borrowed.WithLabelValues(keyLabel(key)).Inc()
			p.metrics.active.WithLabelValues(keyLabel(key)).Inc()
			p.metrics.idle.WithLabelValues(keyLabel(key)).Set(float64(sp.idleCount()))
			p.metrics.borrowWaitSeconds.WithLabelValues(keyLabel(key)).Observe(time.Since(start).Seconds())
		}
		return obj, nil
	}
}

// Return hands a borrowed instance back to the pool.
func (p *Pool[K, T]) Return(ctx context.Context, key K, obj T) error {
	cfg := p.loadConfig()

	sp, ok := p.registry.lookup(key)
	if !ok {
		return newPoolError(ErrorTypeNotOwned, key, "no sub-pool for key", nil)
	}
	w, ok := sp.allObjects.Load(obj)
	if !ok {
		return newPoolError(ErrorTypeNotOwned, key, "object not tracked by this pool", nil)
	}

	if cfg.TestOnReturn {
		if !p.factory.Validate(ctx, key, obj) {
			p.destroyWrapper(ctx, key, sp, w, true)
			return nil
		}
	}

	if err := p.factory.Passivate(ctx, key, obj); err != nil {
		p.destroyWrapper(ctx, key, sp, w, true)
		p.swallow(ErrorTypeInvariant, key, err)
		return nil
	}

	if !w.deallocate() {
		return newPoolError(ErrorTypeDoubleReturn, key, "object already idle", nil)
	}

	destroy := p.isClosed()
	if !destroy && cfg.MaxIdlePerKey >= 0 && sp.idleCount() >= cfg.MaxIdlePerKey {
		destroy = true
	}

	if destroy {
		p.destroyWrapper(ctx, key, sp, w, true)
	} else if cfg.LIFO {
		sp.idle.offerFirst(w)
	} else {
		sp.idle.offerLast(w)
	}

	if p.anyWaiters() {
		p.reuseCapacity(ctx, cfg)
	}

	p.returnedCount.Add(1)
	if p.metrics != nil {
		p.metrics.returned.WithLabelValues(keyLabel(key)).Inc()
		p.metrics.active.WithLabelValues(keyLabel(key)).Set(float64(sp.activeCount()))
		p.metrics.idle.WithLabelValues(keyLabel(key)).Set(float64(sp.idleCount()))
	}
	return nil
}

// Invalidate destroys obj unconditionally, without consulting capacity
// limits.
func (p *Pool[K, T]) Invalidate(ctx context.Context, key K, obj T) error {
	sp, ok := p.registry.lookup(key)
	if !ok {
		return newPoolError(ErrorTypeNotOwned, key, "no sub-pool for key", nil)
	}
	w, ok := sp.allObjects.Load(obj)
	if !ok {
		return newPoolError(ErrorTypeNotOwned, key, "object not tracked by this pool", nil)
	}
	p.destroyWrapper(ctx, key, sp, w, true)
	return nil
}

// AddObject eagerly creates one instance for key and leaves it idle,
// without a borrower.
func (p *Pool[K, T]) AddObject(ctx context.Context, key K) error {
	if p.isClosed() {
		return newPoolError(ErrorTypeClosed, key, "addObject on closed pool", nil)
	}
	cfg := p.loadConfig()
	sp := p.registry.register(key)
	defer p.registry.deregister(key)

	w, err := p.create(ctx, key, sp)
	if err != nil {
		return newPoolError(ErrorTypeFactoryMake, key, "factory.Make failed", err)
	}
	if w == nil {
		return newPoolError(ErrorTypeExhausted, key, "at capacity", nil)
	}
	if cfg.LIFO {
		sp.idle.offerFirst(w)
	} else {
		sp.idle.offerLast(w)
	}
	return nil
}

// PreparePool tops key up to Config.MinIdlePerKeyEffective, creating
// instances as needed.
func (p *Pool[K, T]) PreparePool(ctx context.Context, key K) error {
	cfg := p.loadConfig()
	minIdle := cfg.MinIdlePerKeyEffective()
	for i := 0; i < minIdle; i++ {
		if p.NumIdle(key) >= minIdle {
			return nil
		}
		if err := p.AddObject(ctx, key); err != nil {
			if IsType(err, ErrorTypeExhausted) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Clear destroys every idle instance for key, without touching allocated
// instances.
func (p *Pool[K, T]) Clear(ctx context.Context, key K) {
	sp, ok := p.registry.lookup(key)
	if !ok {
		return
	}
	p.destroyAllIdle(ctx, key, sp)
}

// ClearAll destroys every idle instance across every key.
func (p *Pool[K, T]) ClearAll(ctx context.Context) {
	p.registry.forEach(func(key K, sp *subPool[T]) {
		p.destroyAllIdle(ctx, key, sp)
	})
}

// create enforces the global and per-key caps and invokes factory.Make
// outside any lock. When the global cap is reached it frees room with
// clearOldest and tries again, as long as any idle instance exists. It
// returns (nil, nil) when a cap is reached and the caller should fall back
// to waiting/failing per the blocking policy, and (nil, err) when
// factory.Make itself failed.
func (p *Pool[K, T]) create(ctx context.Context, key K, sp *subPool[T]) (*wrapper[T], error) {
	cfg := p.loadConfig()

	for {
		total := p.numTotal.Add(1)
		if cfg.MaxTotal < 0 || total <= int64(cfg.MaxTotal) {
			break
		}
		p.numTotal.Add(-1)
		if !p.hasAnyIdle() {
			return nil, nil
		}
		p.clearOldest(ctx, cfg)
	}

	perKey := sp.createCount.Add(1)
	if cfg.MaxTotalPerKey >= 0 && perKey > int64(cfg.MaxTotalPerKey) {
		sp.createCount.Add(-1)
		p.numTotal.Add(-1)
		return nil, nil
	}

	obj, err := p.factory.Make(ctx, key)
	if err != nil {
		sp.createCount.Add(-1)
		p.numTotal.Add(-1)
		return nil, err
	}

	w := newWrapper(obj)
	sp.allObjects.Store(obj, w)
	p.createdCount.Add(1)
	if p.metrics != nil {
		p.metrics.created.WithLabelValues(keyLabel(key)).Inc()
	}
	return w, nil
}

// destroyWrapper tears w down: removes it from the idle deque (if
// present) and from allObjects, marks it INVALID, and invokes
// factory.Destroy outside any lock. always forces the destruction even if
// w was not found idle (e.g. it was borrowed or just created); callers
// that instead only want to destroy an instance still sitting idle —
// clearOldest, racing against concurrent borrows — pass always=false and
// get back whether the destruction actually happened.
func (p *Pool[K, T]) destroyWrapper(ctx context.Context, key K, sp *subPool[T], w *wrapper[T], always bool) bool {
	removedFromIdle := sp.idle.removeElement(w)
	if !removedFromIdle && !always {
		return false
	}

	obj := w.getObject()
	sp.allObjects.Delete(obj)
	w.invalidate()

	if err := p.factory.Destroy(ctx, key, obj); err != nil {
		p.swallow(ErrorTypeInvariant, key, err)
	}

	sp.createCount.Add(-1)
	p.numTotal.Add(-1)
	p.destroyedCount.Add(1)
	if p.metrics != nil {
		p.metrics.destroyed.WithLabelValues(keyLabel(key)).Inc()
	}
	return true
}

// clearOldest builds a view of every idle wrapper across every key
// ordered by last-return timestamp ascending, and destroys the oldest
// ceil(15%)+1 of them, counting only successful destructions toward the
// quota. The 15% fraction is fixed rather than configurable.
func (p *Pool[K, T]) clearOldest(ctx context.Context, cfg Config) {
	type candidate struct {
		key K
		sp  *subPool[T]
		w   *wrapper[T]
	}

	var all []candidate
	p.registry.forEach(func(key K, sp *subPool[T]) {
		for _, w := range sp.idle.snapshotFront() {
			all = append(all, candidate{key: key, sp: sp, w: w})
		}
	})
	if len(all) == 0 {
		return
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].w.lastReturnNanos() < all[j].w.lastReturnNanos()
	})

	quota := int(math.Ceil(float64(len(all))*0.15)) + 1
	destroyed := 0
	for _, c := range all {
		if destroyed >= quota {
			return
		}
		if p.destroyWrapper(ctx, c.key, c.sp, c.w, false) {
			destroyed++
		}
	}
}

// reuseCapacity biases a capacity slot freed under one key toward the
// sub-pool with the most waiters, so a global cap does not deadlock
// waiters under a different key. Best-effort: it may miss a waiter due
// to concurrent mutation.
func (p *Pool[K, T]) reuseCapacity(ctx context.Context, cfg Config) {
	var bestKey K
	found := false
	bestLen := 0

	p.registry.forEach(func(key K, sp *subPool[T]) {
		l := sp.idle.getTakeQueueLength()
		if l == 0 {
			return
		}
		if cfg.MaxTotalPerKey >= 0 && sp.createCount.Load() >= int64(cfg.MaxTotalPerKey) {
			return
		}
		if !found || l > bestLen {
			found, bestLen, bestKey = true, l, key
		}
	})
	if !found {
		return
	}

	sp := p.registry.register(bestKey)
	defer p.registry.deregister(bestKey)

	w, err := p.create(ctx, bestKey, sp)
	if err != nil || w == nil {
		return
	}

	obj := w.getObject()
	if err := p.factory.Passivate(ctx, bestKey, obj); err != nil {
		p.destroyWrapper(ctx, bestKey, sp, w, true)
		p.swallow(ErrorTypeInvariant, bestKey, err)
		return
	}

	if cfg.LIFO {
		sp.idle.offerFirst(w)
	} else {
		sp.idle.offerLast(w)
	}
}

func (p *Pool[K, T]) hasAnyIdle() bool {
	any := false
	p.registry.forEach(func(_ K, sp *subPool[T]) {
		if !any && sp.idleCount() > 0 {
			any = true
		}
	})
	return any
}

func (p *Pool[K, T]) anyWaiters() bool {
	any := false
	p.registry.forEach(func(_ K, sp *subPool[T]) {
		if !any && sp.idle.hasTakeWaiters() {
			any = true
		}
	})
	return any
}

// NumWaiters is a monitoring-only estimate summing each sub-pool's
// take-queue length; it can overcount if a single thread migrates
// between queues.
func (p *Pool[K, T]) NumWaiters() int {
	total := 0
	p.registry.forEach(func(_ K, sp *subPool[T]) {
		total += sp.idle.getTakeQueueLength()
	})
	return total
}
