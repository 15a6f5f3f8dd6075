package asyncrt

import (
	"errors"
	"sync"
)

// ErrOneshotCanceled is the error received from a [OneshotReceiver] whose
// sender was closed without sending a value.
var ErrOneshotCanceled = errors.New("asyncrt: oneshot canceled")

// Result pairs a value with an error, and is the output of futures that may
// fail, e.g. [JoinHandle] and [OneshotReceiver].
type Result[T any] struct {
	Value T
	Err   error
}

// Get unpacks the result.
func (r Result[T]) Get() (T, error) { return r.Value, r.Err }

type oneshot[T any] struct {
	done     chan struct{}
	waker    Waker
	result   Result[T]
	mu       sync.Mutex
	complete bool
	dropped  bool
}

// OneshotSender is the sending half of a single-value channel.
type OneshotSender[T any] struct {
	c *oneshot[T]
}

// OneshotReceiver is the receiving half of a single-value channel. It is a
// [Future] that completes with the sent value, or [ErrOneshotCanceled].
type OneshotReceiver[T any] struct {
	c *oneshot[T]
}

// NewOneshot returns a connected sender and receiver.
func NewOneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	c := &oneshot[T]{done: make(chan struct{})}
	return &OneshotSender[T]{c}, &OneshotReceiver[T]{c}
}

// resolve stores r, if nothing has been stored yet, waking the receiver.
func (x *oneshot[T]) resolve(r Result[T]) bool {
	x.mu.Lock()
	if x.complete {
		x.mu.Unlock()
		return false
	}
	x.complete = true
	x.result = r
	w := x.waker
	x.waker = nil
	close(x.done)
	x.mu.Unlock()
	if w != nil {
		w.Wake()
	}
	return true
}

// Send delivers v. It returns false if a value was already sent, the sender
// was closed, or the receiver has been dropped (in which case v is
// discarded).
func (x *OneshotSender[T]) Send(v T) bool {
	x.c.mu.Lock()
	dropped := x.c.dropped
	x.c.mu.Unlock()
	if dropped {
		return false
	}
	return x.c.resolve(Result[T]{Value: v})
}

// Close cancels the channel, if no value has been sent.
func (x *OneshotSender[T]) Close() {
	var zero T
	x.c.resolve(Result[T]{Value: zero, Err: ErrOneshotCanceled})
}

// IsCanceled reports whether the receiver has been dropped.
func (x *OneshotSender[T]) IsCanceled() bool {
	x.c.mu.Lock()
	defer x.c.mu.Unlock()
	return x.c.dropped
}

// Poll implements [Future].
func (x *OneshotReceiver[T]) Poll(cx *Context) Poll[Result[T]] {
	x.c.mu.Lock()
	defer x.c.mu.Unlock()
	if x.c.complete {
		return Ready(x.c.result)
	}
	x.c.waker = cx.Waker()
	return Pending[Result[T]]()
}

// Drop releases the receiver. Subsequent sends are discarded.
func (x *OneshotReceiver[T]) Drop() {
	x.c.mu.Lock()
	x.c.dropped = true
	x.c.waker = nil
	x.c.mu.Unlock()
}

// Done returns a channel that is closed once a value is sent, or the sender
// is closed. It allows synchronous code to wait for the result.
func (x *OneshotReceiver[T]) Done() <-chan struct{} {
	return x.c.done
}

// TryRecv returns the result, if it is available.
func (x *OneshotReceiver[T]) TryRecv() (Result[T], bool) {
	x.c.mu.Lock()
	defer x.c.mu.Unlock()
	return x.c.result, x.c.complete
}
