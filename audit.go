package pool

import (
	"sync"
	"time"
)

// SwallowedError is one entry in the audit ring: an error that occurred
// somewhere that swallows rather than surfaces it (factory.Destroy,
// factory.Passivate, and anything the evictor observes).
type SwallowedError struct {
	Time time.Time
	Type ErrorType
	Key  any
	Err  error
}

// auditRing is a bounded ring buffer of the most recent swallowed errors,
// exposed for diagnostics.
type auditRing struct {
	mu        sync.Mutex
	buf       []SwallowedError
	next      int
	size      int
	onSwallow func(ErrorType, any, error)
}

func newAuditRing(capacity int, onSwallow func(ErrorType, any, error)) *auditRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &auditRing{buf: make([]SwallowedError, capacity), onSwallow: onSwallow}
}

func (r *auditRing) push(t ErrorType, key any, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.buf[r.next] = SwallowedError{Time: time.Now(), Type: t, Key: key, Err: err}
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
	r.mu.Unlock()

	if r.onSwallow != nil {
		r.onSwallow(t, key, err)
	}
}

// Snapshot returns the buffered entries, oldest first.
func (r *auditRing) Snapshot() []SwallowedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SwallowedError, r.size)
	if r.size == 0 {
		return out
	}
	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
