package asyncrt

// Future is a resumable computation producing a single value of type T.
//
// Poll attempts to make progress. It returns a ready [Poll] exactly once, at
// which point the future must not be polled again. A pending result means the
// future has arranged for the [Waker] obtained from cx to be invoked when it
// may be able to make further progress; until then, it will not be polled.
//
// Implementations must never block the calling goroutine waiting on I/O or
// time, that is what returning pending is for.
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// Dropper may be implemented by a [Future] that holds registrations (timer
// entries, reactor waiters, channel ends) which must be released if the future
// is abandoned before it completes. The runtime calls Drop on tasks it
// discards, and combinators such as [Race] call it on the losers.
type Dropper interface {
	Drop()
}

// Poll is the outcome of a single [Future.Poll] call.
type Poll[T any] struct {
	Value T
	Ready bool
}

// Ready returns a completed [Poll] carrying v.
func Ready[T any](v T) Poll[T] { return Poll[T]{Value: v, Ready: true} }

// Pending returns a pending [Poll].
func Pending[T any]() Poll[T] { return Poll[T]{} }

// IsPending reports whether p is not ready.
func (p Poll[T]) IsPending() bool { return !p.Ready }

// Context is passed to [Future.Poll], and carries the [Waker] of the task
// currently being polled.
type Context struct {
	waker Waker
}

// NewContext returns a [Context] that hands out w. It is mostly useful for
// polling futures by hand, e.g. in tests.
func NewContext(w Waker) *Context {
	if w == nil {
		w = noopWaker{}
	}
	return &Context{waker: w}
}

// Waker returns the waker that should be registered by a future that is about
// to return pending.
func (cx *Context) Waker() Waker {
	if cx == nil || cx.waker == nil {
		return noopWaker{}
	}
	return cx.waker
}

// PollFunc adapts a function to a [Future].
type PollFunc[T any] func(cx *Context) Poll[T]

// Poll implements [Future].
func (f PollFunc[T]) Poll(cx *Context) Poll[T] { return f(cx) }

// PollFn is a convenience constructor for [PollFunc], mirroring the common
// poll_fn idiom.
func PollFn[T any](f func(cx *Context) Poll[T]) Future[T] { return PollFunc[T](f) }

// Value returns a future that is immediately ready with v.
func Value[T any](v T) Future[T] {
	return PollFunc[T](func(*Context) Poll[T] { return Ready(v) })
}

// Lazy returns a future that calls fn on its first poll, completing with the
// result. The function runs on whichever goroutine polls the future, with the
// ambient runtime installed, so it may call [Spawn].
func Lazy[T any](fn func() T) Future[T] {
	return PollFunc[T](func(*Context) Poll[T] { return Ready(fn()) })
}

// drop calls Drop on f, if it supports it.
func drop(f any) {
	if d, ok := f.(Dropper); ok {
		d.Drop()
	}
}
