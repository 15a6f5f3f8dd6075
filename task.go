package asyncrt

// TaskID identifies a task within its scheduler. Ids are allocated from a
// per-scheduler counter, and are never reused.
type TaskID uint64

// runnable is a type-erased spawned future.
type runnable interface {
	// poll makes progress, returning true once the task has completed.
	poll(cx *Context) bool
	// drop discards the task before completion.
	drop(id TaskID, cause error)
	// fail completes the task with a recovered panic.
	fail(id TaskID, value any)
}

type spawned[T any] struct {
	fut Future[T]
	tx  *OneshotSender[T]
}

func newSpawned[T any](f Future[T]) (*spawned[T], *OneshotReceiver[T]) {
	tx, rx := NewOneshot[T]()
	return &spawned[T]{fut: f, tx: tx}, rx
}

func (x *spawned[T]) poll(cx *Context) bool {
	p := x.fut.Poll(cx)
	if !p.Ready {
		return false
	}
	x.fut = nil
	x.tx.Send(p.Value)
	return true
}

func (x *spawned[T]) drop(id TaskID, cause error) {
	if f := x.fut; f != nil {
		x.fut = nil
		drop(f)
	}
	x.tx.c.resolve(Result[T]{Err: &JoinError{Task: id, Cause: cause}})
}

func (x *spawned[T]) fail(id TaskID, value any) {
	if f := x.fut; f != nil {
		x.fut = nil
		drop(f)
	}
	x.tx.c.resolve(Result[T]{Err: &JoinError{Task: id, Panic: value, Panicked: true}})
}
