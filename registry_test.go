package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubPoolRemovable(t *testing.T) {
	sp := newSubPool[int]()
	assert.True(t, sp.removable())

	sp.register()
	assert.False(t, sp.removable())

	sp.deregister()
	assert.True(t, sp.removable())

	sp.createCount.Add(1)
	assert.False(t, sp.removable())
}

func TestSubPoolCounts(t *testing.T) {
	sp := newSubPool[int]()
	w1, w2 := newWrapper(1), newWrapper(2)
	sp.allObjects.Store(1, w1)
	sp.allObjects.Store(2, w2)
	sp.idle.offerLast(w1)

	assert.Equal(t, 2, sp.liveCount())
	assert.Equal(t, 1, sp.idleCount())
	assert.Equal(t, 1, sp.activeCount())
}

func TestRegistryRegisterDeregisterRemoves(t *testing.T) {
	r := newRegistry[string, int]()

	sp := r.register("a")
	require.NotNil(t, sp)
	assert.Equal(t, []string{"a"}, r.keys())

	sp2, ok := r.lookup("a")
	require.True(t, ok)
	assert.Same(t, sp, sp2)

	r.deregister("a")
	assert.Empty(t, r.keys(), "sub-pool with no interest and no live instances must be removed")

	_, ok = r.lookup("a")
	assert.False(t, ok)
}

func TestRegistryKeepsSubPoolWithLiveInstances(t *testing.T) {
	r := newRegistry[string, int]()
	sp := r.register("a")
	sp.createCount.Add(1)

	r.deregister("a")
	assert.Equal(t, []string{"a"}, r.keys(), "a sub-pool with createCount > 0 must survive deregister")
}

func TestRegistryReusesExistingSubPool(t *testing.T) {
	r := newRegistry[string, int]()
	sp1 := r.register("a")
	sp2 := r.register("a")
	assert.Same(t, sp1, sp2)
	r.deregister("a")
	r.deregister("a")
	assert.Empty(t, r.keys())
}

func TestRegistryForEach(t *testing.T) {
	r := newRegistry[string, int]()
	r.register("a")
	r.register("b")
	defer r.deregister("a")
	defer r.deregister("b")

	seen := map[string]bool{}
	r.forEach(func(k string, sp *subPool[int]) {
		seen[k] = true
	})
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}

func TestRegistryDeregisterUnknownKeyPanics(t *testing.T) {
	r := newRegistry[string, int]()
	assert.Panics(t, func() { r.deregister("missing") })
}
