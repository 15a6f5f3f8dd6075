package asyncrt

// JoinHandle represents the eventual completion of a spawned task. It is a
// [Future] resolving to the task's output, or a [*JoinError] if the task
// panicked or was dropped before it completed (e.g. the runtime closed).
//
// Discarding a JoinHandle detaches the task, which keeps running.
type JoinHandle[T any] struct {
	rx *OneshotReceiver[T]
	id TaskID
}

// ID returns the id of the task, unique within its runtime.
func (x *JoinHandle[T]) ID() TaskID { return x.id }

// Poll implements [Future].
func (x *JoinHandle[T]) Poll(cx *Context) Poll[Result[T]] {
	return x.rx.Poll(cx)
}

// Drop detaches the task, releasing any registered waker.
func (x *JoinHandle[T]) Drop() { x.rx.Drop() }

// Done returns a channel that is closed once the task has finished, in any
// way.
func (x *JoinHandle[T]) Done() <-chan struct{} { return x.rx.Done() }

// Wait blocks the calling goroutine until the task finishes. It must not be
// called from within a task, use the handle as a [Future] instead.
func (x *JoinHandle[T]) Wait() (T, error) {
	<-x.rx.Done()
	r, _ := x.rx.TryRecv()
	return r.Get()
}

// IsFinished reports whether the task has finished.
func (x *JoinHandle[T]) IsFinished() bool {
	_, ok := x.rx.TryRecv()
	return ok
}
