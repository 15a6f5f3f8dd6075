package asyncrt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCurrentThread(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewCurrentThread(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func newMultiThread(t *testing.T, workers int, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewMultiThread(workers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// blockOn is BlockOn, failing the test on error.
func blockOn[T any](t *testing.T, rt *Runtime, f Future[T]) T {
	t.Helper()
	v, err := BlockOn(rt, f)
	require.NoError(t, err)
	return v
}

// countingWaker counts wakes, forwarding them to the task's own waker.
type countingWaker struct {
	inner Waker
	calls atomic.Int64
}

func (x *countingWaker) Wake() {
	x.calls.Add(1)
	x.inner.Wake()
}

func (x *countingWaker) count() int64 { return x.calls.Load() }

// currentWaker completes with the waker of the polling task.
func currentWaker() Future[Waker] {
	return PollFn(func(cx *Context) Poll[Waker] { return Ready(cx.Waker()) })
}

// newCountingWaker wraps the waker of the polling task.
func newCountingWaker() Future[*countingWaker] {
	return Map(currentWaker(), func(w Waker) *countingWaker { return &countingWaker{inner: w} })
}

// mailbox is an unbounded multi-producer, single-consumer async queue.
type mailbox[T any] struct {
	values []T
	waker  Waker
	mu     sync.Mutex
	closed bool
}

func (x *mailbox[T]) send(v T) {
	x.mu.Lock()
	x.values = append(x.values, v)
	w := x.waker
	x.waker = nil
	x.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func (x *mailbox[T]) close() {
	x.mu.Lock()
	x.closed = true
	w := x.waker
	x.waker = nil
	x.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// recv completes with the next value, or ErrOneshotCanceled once closed and
// drained.
func (x *mailbox[T]) recv() Future[Result[T]] {
	return PollFn(func(cx *Context) Poll[Result[T]] {
		x.mu.Lock()
		defer x.mu.Unlock()
		if len(x.values) != 0 {
			v := x.values[0]
			x.values = x.values[1:]
			return Ready(Result[T]{Value: v})
		}
		if x.closed {
			return Ready(Result[T]{Err: ErrOneshotCanceled})
		}
		x.waker = cx.Waker()
		return Pending[Result[T]]()
	})
}

// barrier is a reusable, blocking rendezvous of n goroutines.
type barrier struct {
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) *barrier {
	return &barrier{cond: sync.NewCond(new(sync.Mutex)), n: n}
}

func (x *barrier) wait() {
	x.cond.L.Lock()
	defer x.cond.L.Unlock()
	gen := x.gen
	x.count++
	if x.count == x.n {
		x.count = 0
		x.gen++
		x.cond.Broadcast()
		return
	}
	for gen == x.gen {
		x.cond.Wait()
	}
}

// recvTimeout receives from ch, failing the test after d.
func recvTimeout[T any](t *testing.T, ch <-chan T, d time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("timed out after %s", d)
		panic("unreachable")
	}
}

// await adapts a result future, marking the test failed if it errors. It is
// safe to use from any goroutine.
func await[T any](t *testing.T, f Future[Result[T]]) Future[T] {
	return Map(f, func(r Result[T]) T {
		assert.NoError(t, r.Err)
		return r.Value
	})
}
