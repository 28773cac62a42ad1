package pool

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// evictor is the background sweep task: it runs on a fixed period,
// holding the engine's evictionMu for the duration of each sweep (serial
// with other sweeps, concurrent with Borrow/Return), visiting idle
// instances round-robin across keys, applying the eviction policy, and
// replenishing MinIdlePerKey.
type evictor[K comparable, T comparable] struct {
	p *Pool[K, T]

	mu      sync.Mutex
	ticker  *time.Ticker
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	// Cursor state persists across runs: a single eviction sweep only
	// tests NumTestsPerEvictionRun instances, so the key/instance cursors
	// carry over to the next tick rather than resetting.
	keys    []K
	keyIdx  int
	cursor  []*wrapper[T]
	curIdx  int
	curKey  K
	curSp   *subPool[T]
	haveKey bool
}

func newEvictor[K comparable, T comparable](p *Pool[K, T]) *evictor[K, T] {
	return &evictor[K, T]{p: p}
}

func (e *evictor[K, T]) start(period time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.ticker = time.NewTicker(period)
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	ticker := e.ticker
	stopCh := e.stopCh
	doneCh := e.doneCh
	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				e.runOnce()
			}
		}
	}()
}

func (e *evictor[K, T]) stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	ticker := e.ticker
	stopCh := e.stopCh
	doneCh := e.doneCh
	e.mu.Unlock()

	ticker.Stop()
	close(stopCh)
	<-doneCh
}

// runOnce executes a single eviction sweep plus the min-idle replenishment
// pass. It never panics and never lets a factory error escape: the
// evictor must stay alive across arbitrary factory misbehavior, so
// everything it observes is swallowed into the audit buffer instead.
func (e *evictor[K, T]) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			e.p.swallow(ErrorTypeInvariant, nil, newPoolError(ErrorTypeInvariant, nil, "evictor recovered from panic", nil))
		}
	}()

	p := e.p
	p.evictionMu.Lock()
	defer p.evictionMu.Unlock()

	ctx := context.Background()
	cfg := p.loadConfig()

	totalIdle := p.NumIdleAll()
	numTests := computeNumTests(cfg.NumTestsPerEvictionRun, totalIdle)

	destroyed, tested := 0, 0
	for tested < numTests {
		key, sp, w, ok := e.next()
		if !ok {
			break
		}
		if !w.startEvictionTest() {
			// Raced with a borrow; skip without counting.
			continue
		}
		tested++

		idleTime := w.getIdleTime()
		evict := cfg.evictionPolicy()(idleTime, cfg.MinEvictableIdleTime, cfg.SoftMinEvictableIdleTime, cfg.MinIdlePerKeyEffective(), sp.idleCount())

		destroyedThis := false
		if evict {
			destroyedThis = true
		} else if cfg.TestWhileIdle {
			obj := w.getObject()
			if err := p.factory.Activate(ctx, key, obj); err != nil {
				p.swallow(ErrorTypeFactoryActivate, key, err)
				destroyedThis = true
			} else if !p.factory.Validate(ctx, key, obj) {
				destroyedThis = true
			} else if err := p.factory.Passivate(ctx, key, obj); err != nil {
				p.swallow(ErrorTypeInvariant, key, err)
				destroyedThis = true
			}
		}

		if destroyedThis {
			if p.destroyWrapper(ctx, key, sp, w, true) {
				p.destroyedByEvictor.Add(1)
				if p.metrics != nil {
					p.metrics.destroyedByEvictor.WithLabelValues(keyLabel(key)).Inc()
				}
				destroyed++
			}
			continue
		}

		if !w.endEvictionTest() {
			// A borrower's pollFirst removed this wrapper from the
			// deque while the evictor held it; re-enqueue at the head
			// so it isn't lost, satisfying the LIFO contract.
			sp.idle.offerFirst(w)
		}
	}

	replenished := e.replenishMinIdle(ctx, cfg)

	if p.metrics != nil {
		p.registry.forEach(func(key K, sp *subPool[T]) {
			p.metrics.waiters.WithLabelValues(keyLabel(key)).Set(float64(sp.idle.getTakeQueueLength()))
		})
	}

	if destroyed > 0 || replenished > 0 {
		p.logger.Debug("evictor sweep",
			zap.Int("tested", tested),
			zap.Int("destroyed", destroyed),
			zap.Int("replenished", replenished))
	}
}

// computeNumTests resolves the "tests per run" rule: a positive value is
// an absolute count clamped to totalIdle; a negative value N is a
// fraction divisor, ceil(totalIdle / |N|).
func computeNumTests(numTestsPerRun, totalIdle int) int {
	if totalIdle <= 0 {
		return 0
	}
	switch {
	case numTestsPerRun > 0:
		if numTestsPerRun < totalIdle {
			return numTestsPerRun
		}
		return totalIdle
	case numTestsPerRun < 0:
		return int(math.Ceil(float64(totalIdle) / float64(-numTestsPerRun)))
	default:
		return 0
	}
}

// next returns the next candidate wrapper for eviction testing, advancing
// the persistent key/instance cursors as needed. ok is false only when
// every key's idle set is currently empty.
func (e *evictor[K, T]) next() (K, *subPool[T], *wrapper[T], bool) {
	for {
		if e.curIdx < len(e.cursor) {
			w := e.cursor[e.curIdx]
			e.curIdx++
			return e.curKey, e.curSp, w, true
		}
		if !e.advanceKey() {
			var zero K
			return zero, nil, nil, false
		}
	}
}

// advanceKey moves to the next key with a non-empty idle set, snapshotting
// the instance cursor for it ordered oldest-first, regardless of the
// configured LIFO/FIFO return discipline. When the key cursor itself is
// exhausted, it re-snapshots the key list under the registry's read lock
// and starts over.
func (e *evictor[K, T]) advanceKey() bool {
	for {
		fresh := false
		if e.keyIdx >= len(e.keys) {
			e.keys = e.p.registry.keys()
			e.keyIdx = 0
			fresh = true
			if len(e.keys) == 0 {
				return false
			}
		}

		for e.keyIdx < len(e.keys) {
			key := e.keys[e.keyIdx]
			e.keyIdx++

			sp, ok := e.p.registry.lookup(key)
			if !ok {
				continue
			}
			idle := sp.idle.snapshotFront()
			if len(idle) == 0 {
				continue
			}
			sort.Slice(idle, func(i, j int) bool {
				return idle[i].lastReturnNanos() < idle[j].lastReturnNanos()
			})
			e.curKey = key
			e.curSp = sp
			e.cursor = idle
			e.curIdx = 0
			e.haveKey = true
			return true
		}

		// Exhausted this pass over the keys with nothing found. A pass
		// that began on a fresh snapshot means every key is empty;
		// otherwise force a fresh snapshot on the next iteration.
		e.keys = nil
		e.keyIdx = 0
		if fresh {
			return false
		}
	}
}

// replenishMinIdle tops every key up to MinIdlePerKeyEffective, clamped by
// the per-key and global caps.
func (e *evictor[K, T]) replenishMinIdle(ctx context.Context, cfg Config) int {
	minIdle := cfg.MinIdlePerKeyEffective()
	if minIdle <= 0 {
		return 0
	}

	created := 0
	p := e.p
	p.registry.forEach(func(key K, snapshot *subPool[T]) {
		deficit := minIdle - snapshot.idleCount()
		if deficit <= 0 {
			return
		}
		if cfg.MaxTotalPerKey >= 0 {
			room := cfg.MaxTotalPerKey - int(snapshot.createCount.Load())
			if room < deficit {
				deficit = room
			}
		}
		if cfg.MaxTotal >= 0 {
			room := cfg.MaxTotal - int(p.numTotal.Load())
			if room < deficit {
				deficit = room
			}
		}
		if deficit <= 0 {
			return
		}

		// register/deregister keeps the sub-pool alive across the
		// creation loop: without this, a key with zero live instances
		// and zero interest at the moment of the forEach snapshot can
		// be reclaimed by a concurrent deregister while this loop is
		// still creating against it, leaking the created instance.
		sp := p.registry.register(key)
		defer p.registry.deregister(key)

		for i := 0; i < deficit; i++ {
			w, err := p.create(ctx, key, sp)
			if err != nil {
				p.swallow(ErrorTypeFactoryMake, key, err)
				return
			}
			if w == nil {
				return
			}
			if cfg.LIFO {
				sp.idle.offerFirst(w)
			} else {
				sp.idle.offerLast(w)
			}
			created++
		}
	})
	return created
}
