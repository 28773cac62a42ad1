package pool

import "sync/atomic"

// subPool bundles everything the engine needs for one key: the fair idle
// deque, the authoritative set of live instances for the key, a
// create-counter, and an interest counter. It is a pure container — no
// logic beyond accessors.
//
// The interest counter distinguishes "a sub-pool currently being used by
// some engine operation" from "idle, removable": a sub-pool is eligible
// for removal from the registry only when both createCount and
// numInterested are zero.
//
// T is constrained to comparable so allObjects can be keyed directly by
// the pooled object itself — an identity-keyed map. Return and Invalidate
// only ever receive the bare T a caller borrowed, so some form of
// object-identity lookup is unavoidable, and Go's comparable constraint
// is the idiomatic way to ask a type for that.
type subPool[T comparable] struct {
	idle *deque[T]

	// allObjects maps every live object for this key to its wrapper. An
	// object observed here may already be gone from idle (borrowed, or
	// mid-destroy) and vice-versa; callers must tolerate both.
	allObjects syncMap[T, *wrapper[T]]

	createCount   atomic.Int64
	numInterested atomic.Int64
}

func newSubPool[T comparable]() *subPool[T] {
	return &subPool[T]{idle: newDeque[T]()}
}

// register increments the interest counter; every call must be paired
// with a deregister.
func (sp *subPool[T]) register() {
	sp.numInterested.Add(1)
}

func (sp *subPool[T]) deregister() {
	sp.numInterested.Add(-1)
}

// removable reports whether the sub-pool currently has neither any
// interested operation nor any live instance, and is therefore safe to
// drop from the registry.
func (sp *subPool[T]) removable() bool {
	return sp.numInterested.Load() == 0 && sp.createCount.Load() == 0
}

// liveCount returns the number of instances (idle + allocated) currently
// tracked for this key.
func (sp *subPool[T]) liveCount() int {
	n := 0
	sp.allObjects.Range(func(T, *wrapper[T]) bool {
		n++
		return true
	})
	return n
}

func (sp *subPool[T]) idleCount() int {
	return sp.idle.len()
}

func (sp *subPool[T]) activeCount() int {
	n := sp.liveCount() - sp.idleCount()
	if n < 0 {
		return 0
	}
	return n
}
