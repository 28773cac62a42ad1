package pool

import (
	"time"

	"go.uber.org/zap"
)

// EvictionPolicy decides whether an idle wrapper should be evicted, given
// the wrapper's current idle time, the two configured idle-time
// thresholds, the configured minimum idle count for the key, and the
// key's current idle count.
type EvictionPolicy func(idleTime, minIdleTime, softMinIdleTime time.Duration, minIdlePerKey, idleCount int) bool

// DefaultEvictionPolicy evicts when idleTime exceeds minIdleTime
// unconditionally, or when it exceeds softMinIdleTime and the key already
// has more idle instances than minIdlePerKey calls for.
func DefaultEvictionPolicy(idleTime, minIdleTime, softMinIdleTime time.Duration, minIdlePerKey, idleCount int) bool {
	if minIdleTime >= 0 && idleTime > minIdleTime {
		return true
	}
	if softMinIdleTime >= 0 && idleTime > softMinIdleTime && idleCount > minIdlePerKey {
		return true
	}
	return false
}

// Config is the full configuration surface of the pool. It is held by
// the engine by value; each public operation snapshots the fields it
// needs into locals at entry, so a concurrent Reconfigure cannot tear a
// single in-flight borrow's policy.
type Config struct {
	// MaxTotalPerKey caps the number of live instances (idle + allocated)
	// for any one key. -1 means unlimited.
	//
	// Example: MaxTotalPerKey = 2 means a key can have at most 2 instances
	// alive at once; a third concurrent Borrow blocks or fails depending
	// on BlockWhenExhausted.
	MaxTotalPerKey int

	// MaxTotal caps the number of live instances across every key
	// combined. -1 means unlimited. When both MaxTotal and
	// MaxTotalPerKey are set, MaxTotal is enforced first, freeing room by
	// destroying the globally oldest idle instances (clearOldest) before a
	// per-key create is attempted.
	MaxTotal int

	// MaxIdlePerKey caps how many idle instances a key is allowed to hold
	// after a Return. Once the idle count for a key reaches this value, a
	// returned instance is destroyed instead of re-queued. -1 means
	// unlimited.
	MaxIdlePerKey int

	// MinIdlePerKey is the number of idle instances the evictor tries to
	// keep ready for a key, replenishing by creating new instances when
	// the idle count drops below it. It is implicitly capped at
	// MaxIdlePerKey by MinIdlePerKeyEffective.
	MinIdlePerKey int

	// MaxWait is the wait bound Borrow uses when a key is exhausted;
	// BorrowWait overrides it for a single call. A negative value waits
	// indefinitely. The context passed to Borrow does not end the wait.
	MaxWait time.Duration

	// BlockWhenExhausted controls whether Borrow waits for a returned or
	// newly created instance when a key is at MaxTotalPerKey. When false,
	// an exhausted Borrow fails immediately with ErrExhausted.
	BlockWhenExhausted bool

	// LIFO controls the discipline of the per-key idle deque: true serves
	// the most-recently-returned instance first (stack order, better
	// cache locality), false serves the least-recently-returned instance
	// first (queue order, more even instance aging).
	LIFO bool

	// TestOnBorrow, TestOnReturn and TestWhileIdle each enable a
	// Factory.Validate call at the named lifecycle point. A false result
	// destroys the instance.
	TestOnBorrow  bool
	TestOnReturn  bool
	TestWhileIdle bool

	// NumTestsPerEvictionRun controls how many idle instances the evictor
	// inspects per sweep. A positive value is an absolute count
	// (clamped to the current total idle count). A negative value N is
	// interpreted as a fraction divisor: ceil(totalIdle / |N|).
	NumTestsPerEvictionRun int

	// MinEvictableIdleTime is the idle duration after which a wrapper is
	// unconditionally eligible for eviction by DefaultEvictionPolicy.
	// Negative disables this threshold.
	MinEvictableIdleTime time.Duration

	// SoftMinEvictableIdleTime is a shorter idle duration after which a
	// wrapper becomes eligible for eviction only if the key already has
	// more idle instances than MinIdlePerKey. Negative disables this
	// threshold.
	SoftMinEvictableIdleTime time.Duration

	// TimeBetweenEvictionRuns is the evictor's sweep period. A value <= 0
	// disables the evictor entirely.
	TimeBetweenEvictionRuns time.Duration

	// EvictionPolicy is the pluggable eviction decision function. Nil
	// selects DefaultEvictionPolicy.
	EvictionPolicy EvictionPolicy

	// AuditRingSize bounds the swallowed-exception ring buffer.
	AuditRingSize int

	// OnSwallowedError, when set, is invoked synchronously every time an
	// error is pushed into the audit ring (destroy/passivate failures,
	// anything the evictor observes). It must not block or call back into
	// the pool.
	OnSwallowedError func(ErrorType, any, error)

	// Logger receives structured lifecycle and diagnostic events. A nil
	// Logger is treated as zap.NewNop().
	Logger *zap.Logger
}

// MinIdlePerKeyEffective returns MinIdlePerKey capped at MaxIdlePerKey.
func (c Config) MinIdlePerKeyEffective() int {
	if c.MaxIdlePerKey >= 0 && c.MinIdlePerKey > c.MaxIdlePerKey {
		return c.MaxIdlePerKey
	}
	return c.MinIdlePerKey
}

func (c Config) evictionPolicy() EvictionPolicy {
	if c.EvictionPolicy != nil {
		return c.EvictionPolicy
	}
	return DefaultEvictionPolicy
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// DefaultConfig returns reasonable defaults: bounded per-key capacity,
// blocking borrow, LIFO reuse, no validation at any lifecycle point, a 30-minute
// idle eviction threshold, and the background evictor disabled (callers
// opt in with a TimeBetweenEvictionRuns to run the sweep).
func DefaultConfig() Config {
	return Config{
		MaxTotalPerKey:           8,
		MaxTotal:                 -1,
		MaxIdlePerKey:            8,
		MinIdlePerKey:            0,
		MaxWait:                  -1,
		BlockWhenExhausted:       true,
		LIFO:                     true,
		TestOnBorrow:             false,
		TestOnReturn:             false,
		TestWhileIdle:            false,
		NumTestsPerEvictionRun:   3,
		MinEvictableIdleTime:     30 * time.Minute,
		SoftMinEvictableIdleTime: -1,
		TimeBetweenEvictionRuns:  0,
		AuditRingSize:            64,
	}
}
