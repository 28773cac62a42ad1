package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeOfferPoll(t *testing.T) {
	d := newDeque[int]()
	a, b := newWrapper(1), newWrapper(2)

	d.offerLast(a)
	d.offerLast(b)
	assert.Equal(t, 2, d.len())

	got, ok := d.pollFirst()
	require.True(t, ok)
	assert.Equal(t, a, got)

	got, ok = d.pollFirst()
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = d.pollFirst()
	assert.False(t, ok)
}

func TestDequeOfferFirstLIFO(t *testing.T) {
	d := newDeque[int]()
	a, b := newWrapper(1), newWrapper(2)

	d.offerFirst(a)
	d.offerFirst(b)

	got, ok := d.pollFirst()
	require.True(t, ok)
	assert.Equal(t, b, got, "offerFirst should make the most recent item the new head")
}

func TestDequeTakeBlocksUntilOffer(t *testing.T) {
	d := newDeque[int]()
	w := newWrapper(7)

	result := make(chan *wrapper[int], 1)
	go func() {
		item, ok := d.takeFirst()
		if ok {
			result <- item
		} else {
			result <- nil
		}
	}()

	time.Sleep(20 * time.Millisecond)
	d.offerLast(w)

	select {
	case got := <-result:
		assert.Equal(t, w, got)
	case <-time.After(time.Second):
		t.Fatal("takeFirst never returned")
	}
}

func TestDequePollFirstTimeoutExpires(t *testing.T) {
	d := newDeque[int]()
	_, ok, interrupted := d.pollFirstTimeout(20 * time.Millisecond)
	assert.False(t, ok)
	assert.False(t, interrupted)
}

// TestDequeFairnessFIFOAcrossWaiters is the deque-level check for spec.md
// §8 invariant 7 / scenario S7: with N waiters queued in arrival order,
// the Nth item produced is delivered to the Nth-arrived waiter. Arrival
// order is staggered by sleeping i*5ms before calling takeFirst, so
// waiter i reliably arrives before waiter i+1; served[i] then records
// which offer (0..n-1, offered in that order) waiter i actually received.
func TestDequeFairnessFIFOAcrossWaiters(t *testing.T) {
	d := newDeque[int]()
	const n = 5

	served := make([]int, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			item, ok := d.takeFirst()
			require.True(t, ok)
			served[i] = item.getObject()
		}(i)
	}

	time.Sleep(n*5*time.Millisecond + 30*time.Millisecond)
	for i := 0; i < n; i++ {
		d.offerLast(newWrapper(i))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, i, served[i], "waiter %d (arrived %dth) must receive the %dth offered item", i, i, i)
	}
}

func TestDequeInterruptTakeWaiters(t *testing.T) {
	d := newDeque[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := d.takeFirst()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	d.interruptTakeWaiters()

	select {
	case ok := <-done:
		assert.False(t, ok, "interrupted waiter must report not-ok")
	case <-time.After(time.Second):
		t.Fatal("interrupted waiter never woke")
	}
}

func TestDequeRemoveElement(t *testing.T) {
	d := newDeque[int]()
	a, b, c := newWrapper(1), newWrapper(2), newWrapper(3)
	d.offerLast(a)
	d.offerLast(b)
	d.offerLast(c)

	assert.True(t, d.removeElement(b))
	assert.False(t, d.removeElement(b), "removing twice must fail")

	snap := d.snapshotFront()
	require.Len(t, snap, 2)
	assert.Equal(t, a, snap[0])
	assert.Equal(t, c, snap[1])
}

func TestDequeSnapshotOrdering(t *testing.T) {
	d := newDeque[int]()
	a, b, c := newWrapper(1), newWrapper(2), newWrapper(3)
	d.offerLast(a)
	d.offerLast(b)
	d.offerLast(c)

	front := d.snapshotFront()
	back := d.snapshotBack()
	require.Len(t, front, 3)
	require.Len(t, back, 3)
	assert.Equal(t, []*wrapper[int]{a, b, c}, front)
	assert.Equal(t, []*wrapper[int]{c, b, a}, back)
}

func TestDequeTakeQueueLength(t *testing.T) {
	d := newDeque[int]()
	assert.Equal(t, 0, d.getTakeQueueLength())
	assert.False(t, d.hasTakeWaiters())

	go func() { d.takeFirst() }()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.getTakeQueueLength())
	assert.True(t, d.hasTakeWaiters())

	d.offerLast(newWrapper(1))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, d.getTakeQueueLength())
}
