package pool

import "sync"

// registry maps keys to sub-pools and maintains a parallel ordered list of
// the current keys. Both are mutated only under the write lock; read paths
// use the shared read lock. Invariant: the map's key set equals the list
// as a multiset at every quiescent point under the lock.
type registry[K comparable, T comparable] struct {
	mu    sync.RWMutex
	pools map[K]*subPool[T]
	order []K
}

func newRegistry[K comparable, T comparable]() *registry[K, T] {
	return &registry[K, T]{pools: make(map[K]*subPool[T])}
}

// register returns the sub-pool for key, creating it if absent, and
// increments its interest counter. It takes the optimistic read-lock path
// first; only if the sub-pool is missing does it upgrade to the write
// lock, re-checking after the upgrade in case another goroutine created
// it in the meantime.
func (r *registry[K, T]) register(key K) *subPool[T] {
	r.mu.RLock()
	if sp, ok := r.pools[key]; ok {
		sp.register()
		r.mu.RUnlock()
		return sp
	}
	r.mu.RUnlock()

	r.mu.Lock()
	if sp, ok := r.pools[key]; ok {
		sp.register()
		r.mu.Unlock()
		return sp
	}
	sp := newSubPool[T]()
	r.pools[key] = sp
	r.order = append(r.order, key)
	sp.register()
	r.mu.Unlock()
	return sp
}

// deregister decrements the interest counter for key's sub-pool. If the
// sub-pool becomes removable (no interest, no live instances) it is
// dropped from both the map and the ordered list under the write lock,
// re-checking the removal condition after acquiring it since it may have
// changed. Every register must be paired with a deregister.
func (r *registry[K, T]) deregister(key K) {
	r.mu.RLock()
	sp, ok := r.pools[key]
	r.mu.RUnlock()
	if !ok {
		invariantViolation("deregister(%v): no sub-pool registered", key)
	}

	sp.deregister()
	if !sp.removable() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok = r.pools[key]
	if !ok || !sp.removable() {
		return
	}
	delete(r.pools, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// lookup returns the sub-pool for key without affecting the interest
// counter, for read-only callers (Return, Invalidate, observability
// getters) that don't need to keep the sub-pool alive across a blocking
// wait.
func (r *registry[K, T]) lookup(key K) (*subPool[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.pools[key]
	return sp, ok
}

// keys returns a snapshot of the current key list, copied under the read
// lock.
func (r *registry[K, T]) keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}

// forEach invokes f for every (key, sub-pool) pair in a snapshot of the
// registry taken under the read lock. f is called outside the lock.
func (r *registry[K, T]) forEach(f func(K, *subPool[T])) {
	r.mu.RLock()
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	pools := make([]*subPool[T], len(keys))
	for i, k := range keys {
		pools[i] = r.pools[k]
	}
	r.mu.RUnlock()

	for i, k := range keys {
		f(k, pools[i])
	}
}
