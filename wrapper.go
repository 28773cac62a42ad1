package pool

import (
	"sync/atomic"
	"time"
)

// wrapperState is the tagged variant driving a wrapper's lifecycle. All
// transitions are atomic CAS on this tag; no wrapper holds a lock.
type wrapperState int32

const (
	stateIdle wrapperState = iota
	stateAllocated
	stateEviction
	stateEvictionReturnToHead
	stateInvalid
)

// wrapper wraps one user object of type T with lifecycle state and
// timestamps. Wrappers do not point back at their sub-pool; every lookup
// goes through the registry, indexed by key plus user-object identity, which
// keeps ownership a tree.
type wrapper[T any] struct {
	obj   T
	state atomic.Int32

	createdAt    int64 // unix nanos, immutable after construction
	lastBorrowAt atomic.Int64
	lastReturnAt atomic.Int64
}

func newWrapper[T any](obj T) *wrapper[T] {
	w := &wrapper[T]{obj: obj, createdAt: time.Now().UnixNano()}
	w.state.Store(int32(stateIdle))
	w.lastReturnAt.Store(w.createdAt)
	return w
}

func (w *wrapper[T]) getState() wrapperState {
	return wrapperState(w.state.Load())
}

// allocate claims an idle wrapper for a borrow. It returns true on
// IDLE->ALLOCATED. A wrapper caught mid eviction-test (EVICTION) is moved to
// EVICTION_RETURN_TO_HEAD instead of being claimed, deferring the claim
// until the evictor finishes with it; the caller must treat a false result
// as "try another wrapper", not as an error.
func (w *wrapper[T]) allocate() bool {
	if w.state.CompareAndSwap(int32(stateIdle), int32(stateAllocated)) {
		w.lastBorrowAt.Store(time.Now().UnixNano())
		return true
	}
	w.state.CompareAndSwap(int32(stateEviction), int32(stateEvictionReturnToHead))
	return false
}

// deallocate transitions ALLOCATED->IDLE, marking a return. It returns
// false if the wrapper was not allocated (double return).
func (w *wrapper[T]) deallocate() bool {
	if w.state.CompareAndSwap(int32(stateAllocated), int32(stateIdle)) {
		w.lastReturnAt.Store(time.Now().UnixNano())
		return true
	}
	return false
}

// invalidate forces the wrapper to INVALID regardless of its current
// state; used unconditionally by destroy.
func (w *wrapper[T]) invalidate() {
	w.state.Store(int32(stateInvalid))
}

// startEvictionTest transitions IDLE->EVICTION. False means the wrapper was
// borrowed out from under the evictor; the evictor must skip it.
func (w *wrapper[T]) startEvictionTest() bool {
	return w.state.CompareAndSwap(int32(stateIdle), int32(stateEviction))
}

// endEvictionTest concludes an eviction test. EVICTION->IDLE returns true
// (caller may leave the wrapper wherever it already sits in the deque).
// EVICTION_RETURN_TO_HEAD->IDLE returns false, signalling the caller to
// re-enqueue the wrapper at the deque's head so a racing allocate() is not
// starved and the LIFO ordering contract holds.
func (w *wrapper[T]) endEvictionTest() bool {
	if w.state.CompareAndSwap(int32(stateEviction), int32(stateIdle)) {
		return true
	}
	w.state.CompareAndSwap(int32(stateEvictionReturnToHead), int32(stateIdle))
	return false
}

func (w *wrapper[T]) getActiveTime() time.Duration {
	return time.Since(time.Unix(0, w.lastBorrowAt.Load()))
}

func (w *wrapper[T]) getIdleTime() time.Duration {
	return time.Since(time.Unix(0, w.lastReturnAt.Load()))
}

func (w *wrapper[T]) lastReturnNanos() int64 {
	return w.lastReturnAt.Load()
}

func (w *wrapper[T]) getObject() T {
	return w.obj
}
