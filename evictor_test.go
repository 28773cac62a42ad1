package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNumTests(t *testing.T) {
	assert.Equal(t, 0, computeNumTests(3, 0))
	assert.Equal(t, 3, computeNumTests(3, 10))
	assert.Equal(t, 10, computeNumTests(100, 10))
	assert.Equal(t, 5, computeNumTests(-2, 10))
	assert.Equal(t, 4, computeNumTests(-3, 10))
	assert.Equal(t, 0, computeNumTests(0, 10))
}

func TestEvictorDestroysIdleInstancesPastMinEvictableTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalPerKey = -1
	cfg.MinEvictableIdleTime = 10 * time.Millisecond
	cfg.SoftMinEvictableIdleTime = -1
	cfg.TimeBetweenEvictionRuns = 10 * time.Millisecond
	cfg.NumTestsPerEvictionRun = 10

	var destroyed atomic.Int64
	f := &countingFactory{onDestroy: func(key string, obj int) { destroyed.Add(1) }}
	p := newTestPool(f, cfg)
	defer p.Close()
	ctx := context.Background()

	obj, err := p.Borrow(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, "a", obj))

	require.Eventually(t, func() bool {
		return destroyed.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, p.NumIdle("a"))
}

func TestEvictorSkipsRecentlyReturnedInstances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalPerKey = -1
	cfg.MinEvictableIdleTime = time.Hour
	cfg.SoftMinEvictableIdleTime = -1
	cfg.TimeBetweenEvictionRuns = 10 * time.Millisecond
	cfg.NumTestsPerEvictionRun = 10

	var destroyed atomic.Int64
	f := &countingFactory{onDestroy: func(key string, obj int) { destroyed.Add(1) }}
	p := newTestPool(f, cfg)
	defer p.Close()
	ctx := context.Background()

	obj, err := p.Borrow(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, "a", obj))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), destroyed.Load())
	assert.Equal(t, 1, p.NumIdle("a"))
}

func TestEvictorTestWhileIdleDestroysInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalPerKey = -1
	cfg.TestWhileIdle = true
	cfg.MinEvictableIdleTime = time.Hour
	cfg.SoftMinEvictableIdleTime = -1
	cfg.TimeBetweenEvictionRuns = 10 * time.Millisecond
	cfg.NumTestsPerEvictionRun = 10

	var destroyed atomic.Int64
	f := &countingFactory{
		validate: func(key string, obj int) bool { return false },
		onDestroy: func(key string, obj int) { destroyed.Add(1) },
	}
	p := newTestPool(f, cfg)
	defer p.Close()
	ctx := context.Background()

	obj, err := p.Borrow(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, "a", obj))

	require.Eventually(t, func() bool {
		return destroyed.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEvictorAdvanceKeyRoundRobinsAcrossKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalPerKey = -1
	f := &countingFactory{}
	p := newTestPool(f, cfg)
	defer p.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		obj, err := p.Borrow(ctx, k)
		require.NoError(t, err)
		require.NoError(t, p.Return(ctx, k, obj))
	}

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		key, _, _, ok := p.evictor.next()
		if !ok {
			break
		}
		seen[key] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}
