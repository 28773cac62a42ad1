// Package pool's top-level type: Pool[K, T]. The engine's algorithms live
// in engine.go; this file holds construction, shutdown, and the small
// observability surface.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Pool is a generic, keyed, concurrent object pool. Borrowers call
// Borrow/Return/Invalidate from arbitrary goroutines; a single evictor
// goroutine runs in the background when Config.TimeBetweenEvictionRuns >
// 0.
type Pool[K comparable, T comparable] struct {
	factory Factory[K, T]
	cfg     atomic.Pointer[Config]

	registry *registry[K, T]

	numTotal                    atomic.Int64
	createdCount                atomic.Int64
	destroyedCount              atomic.Int64
	destroyedByEvictor          atomic.Int64
	destroyedByBorrowValidation atomic.Int64
	borrowedCount               atomic.Int64
	returnedCount               atomic.Int64

	closeMu sync.Mutex
	closed  atomic.Bool

	evictionMu sync.Mutex

	audit   *auditRing
	metrics *metricsSet
	logger  *zap.Logger

	evictor *evictor[K, T]
}

// Option customizes a Pool at construction time, beyond the Config
// struct's declarative fields — currently only observability wiring,
// which needs a live prometheus.Registerer handle that doesn't belong in
// a value-type Config snapshot.
type Option[K comparable, T comparable] func(*Pool[K, T])

// WithMetricsName enables Prometheus instrumentation under the given
// pool name, registered with reg. A nil reg registers with
// prometheus.DefaultRegisterer.
func WithMetricsName[K comparable, T comparable](name string, reg prometheus.Registerer) Option[K, T] {
	return func(p *Pool[K, T]) {
		p.metrics = newMetrics(name, reg)
	}
}

// New constructs a Pool using factory and cfg. The background evictor is
// started immediately if cfg.TimeBetweenEvictionRuns > 0.
func New[K comparable, T comparable](factory Factory[K, T], cfg Config, opts ...Option[K, T]) *Pool[K, T] {
	p := &Pool[K, T]{
		factory:  factory,
		registry: newRegistry[K, T](),
		logger:   cfg.logger(),
	}
	p.cfg.Store(&cfg)
	p.audit = newAuditRing(cfg.AuditRingSize, cfg.OnSwallowedError)

	for _, opt := range opts {
		opt(p)
	}

	p.evictor = newEvictor(p)
	if cfg.TimeBetweenEvictionRuns > 0 {
		p.evictor.start(cfg.TimeBetweenEvictionRuns)
	}
	return p
}

func (p *Pool[K, T]) loadConfig() Config {
	return *p.cfg.Load()
}

// Reconfigure swaps the live configuration. In-flight operations that
// already snapshotted the old config at entry run to completion under
// it, so no single Borrow/Return ever sees a torn mix of old and new
// fields.
func (p *Pool[K, T]) Reconfigure(cfg Config) {
	old := p.loadConfig()
	p.cfg.Store(&cfg)

	if cfg.TimeBetweenEvictionRuns != old.TimeBetweenEvictionRuns {
		p.evictor.stop()
		if cfg.TimeBetweenEvictionRuns > 0 {
			p.evictor.start(cfg.TimeBetweenEvictionRuns)
		}
	}
}

// Close shuts the pool down: it stops the evictor, destroys every idle
// instance, interrupts every blocked borrower, and makes Borrow fail with
// ErrClosed from then on. Return and Invalidate continue to work,
// destroying on the spot, so borrowers caught mid-use can still unwind.
func (p *Pool[K, T]) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed.Swap(true) {
		return
	}

	p.evictor.stop()

	ctx := context.Background()
	p.registry.forEach(func(key K, sp *subPool[T]) {
		sp.idle.interruptTakeWaiters()
		p.destroyAllIdle(ctx, key, sp)
	})
	// A second sweep reaps sub-pools whose interest counters drained
	// while the first sweep ran.
	p.registry.forEach(func(key K, sp *subPool[T]) {
		p.destroyAllIdle(ctx, key, sp)
	})

	p.logger.Info("pool closed", zap.Int64("destroyed_total", p.destroyedCount.Load()))
}

func (p *Pool[K, T]) destroyAllIdle(ctx context.Context, key K, sp *subPool[T]) {
	p.registry.register(key)
	defer p.registry.deregister(key)
	for {
		w, ok := sp.idle.pollFirst()
		if !ok {
			return
		}
		p.destroyWrapper(ctx, key, sp, w, true)
	}
}

func (p *Pool[K, T]) isClosed() bool {
	return p.closed.Load()
}

// NumActive returns the number of instances currently checked out for key.
func (p *Pool[K, T]) NumActive(key K) int {
	sp, ok := p.registry.lookup(key)
	if !ok {
		return 0
	}
	return sp.activeCount()
}

// NumIdle returns the number of idle instances currently held for key.
func (p *Pool[K, T]) NumIdle(key K) int {
	sp, ok := p.registry.lookup(key)
	if !ok {
		return 0
	}
	return sp.idleCount()
}

// NumActiveAll sums NumActive across every key currently registered.
func (p *Pool[K, T]) NumActiveAll() int {
	total := 0
	p.registry.forEach(func(_ K, sp *subPool[T]) {
		total += sp.activeCount()
	})
	return total
}

// NumIdleAll sums NumIdle across every key currently registered.
func (p *Pool[K, T]) NumIdleAll() int {
	total := 0
	p.registry.forEach(func(_ K, sp *subPool[T]) {
		total += sp.idleCount()
	})
	return total
}

// Keys returns a snapshot of every key with a live sub-pool.
func (p *Pool[K, T]) Keys() []K {
	return p.registry.keys()
}

// Stats is a point-in-time snapshot of the pool's global counters.
type Stats struct {
	NumTotal                    int64
	Created                     int64
	Destroyed                   int64
	DestroyedByEvictor          int64
	DestroyedByBorrowValidation int64
	Borrowed                    int64
	Returned                    int64
}

// Stats returns a snapshot of the global counters.
func (p *Pool[K, T]) Stats() Stats {
	return Stats{
		NumTotal:                    p.numTotal.Load(),
		Created:                     p.createdCount.Load(),
		Destroyed:                   p.destroyedCount.Load(),
		DestroyedByEvictor:          p.destroyedByEvictor.Load(),
		DestroyedByBorrowValidation: p.destroyedByBorrowValidation.Load(),
		Borrowed:                    p.borrowedCount.Load(),
		Returned:                    p.returnedCount.Load(),
	}
}

// SwallowedErrors returns a snapshot of the most recent swallowed errors.
func (p *Pool[K, T]) SwallowedErrors() []SwallowedError {
	return p.audit.Snapshot()
}

func (p *Pool[K, T]) swallow(t ErrorType, key any, err error) {
	if err == nil {
		return
	}
	p.audit.push(t, key, err)
	if p.metrics != nil {
		p.metrics.swallowedExceptions.WithLabelValues(string(t)).Inc()
	}
	p.logger.Warn("pool: swallowed error", zap.String("type", string(t)), zap.Any("key", key), zap.Error(err))
}
