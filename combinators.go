package asyncrt

// Map returns a future that completes with fn applied to the output of f.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{f: f, fn: fn}
}

type mapFuture[T, U any] struct {
	f  Future[T]
	fn func(T) U
}

func (x *mapFuture[T, U]) Poll(cx *Context) Poll[U] {
	p := x.f.Poll(cx)
	if !p.Ready {
		return Pending[U]()
	}
	x.f = nil
	return Ready(x.fn(p.Value))
}

func (x *mapFuture[T, U]) Drop() {
	if x.f != nil {
		drop(x.f)
		x.f = nil
	}
}

// Then returns a future that runs f, then the future returned by fn.
func Then[T, U any](f Future[T], fn func(T) Future[U]) Future[U] {
	return &thenFuture[T, U]{first: f, fn: fn}
}

type thenFuture[T, U any] struct {
	first  Future[T]
	second Future[U]
	fn     func(T) Future[U]
}

func (x *thenFuture[T, U]) Poll(cx *Context) Poll[U] {
	if x.first != nil {
		p := x.first.Poll(cx)
		if !p.Ready {
			return Pending[U]()
		}
		x.first = nil
		x.second = x.fn(p.Value)
	}
	return x.second.Poll(cx)
}

func (x *thenFuture[T, U]) Drop() {
	if x.first != nil {
		drop(x.first)
		x.first = nil
	}
	if x.second != nil {
		drop(x.second)
		x.second = nil
	}
}

// JoinAll returns a future that completes once every one of fs has, with
// their outputs in order. Every incomplete future is polled on each wake.
func JoinAll[T any](fs ...Future[T]) Future[[]T] {
	return &joinAllFuture[T]{
		fs:  fs,
		out: make([]T, len(fs)),
	}
}

type joinAllFuture[T any] struct {
	fs  []Future[T]
	out []T
}

func (x *joinAllFuture[T]) Poll(cx *Context) Poll[[]T] {
	pending := false
	for i, f := range x.fs {
		if f == nil {
			continue
		}
		p := f.Poll(cx)
		if !p.Ready {
			pending = true
			continue
		}
		x.out[i] = p.Value
		x.fs[i] = nil
	}
	if pending {
		return Pending[[]T]()
	}
	return Ready(x.out)
}

func (x *joinAllFuture[T]) Drop() {
	for i, f := range x.fs {
		if f != nil {
			drop(f)
			x.fs[i] = nil
		}
	}
}

// Raced is the output of [Race].
type Raced[T any] struct {
	Value T
	// Index of the future that completed first.
	Index int
}

// Race returns a future that completes with the output of whichever of fs
// completes first, in order of polling. The others are dropped.
func Race[T any](fs ...Future[T]) Future[Raced[T]] {
	return &raceFuture[T]{fs: fs}
}

type raceFuture[T any] struct {
	fs []Future[T]
}

func (x *raceFuture[T]) Poll(cx *Context) Poll[Raced[T]] {
	for i, f := range x.fs {
		if p := f.Poll(cx); p.Ready {
			x.fs[i] = nil
			x.Drop()
			return Ready(Raced[T]{Value: p.Value, Index: i})
		}
	}
	return Pending[Raced[T]]()
}

func (x *raceFuture[T]) Drop() {
	for i, f := range x.fs {
		if f != nil {
			drop(f)
			x.fs[i] = nil
		}
	}
	x.fs = nil
}

// Either is the output of [Select], only one side is set.
type Either[A, B any] struct {
	Left   A
	Right  B
	IsLeft bool
}

// Select races two futures of different types, e.g. an operation against a
// [Sleep] acting as a timeout. The loser is dropped.
func Select[A, B any](a Future[A], b Future[B]) Future[Either[A, B]] {
	return &selectFuture[A, B]{a: a, b: b}
}

type selectFuture[A, B any] struct {
	a Future[A]
	b Future[B]
}

func (x *selectFuture[A, B]) Poll(cx *Context) Poll[Either[A, B]] {
	if p := x.a.Poll(cx); p.Ready {
		x.a = nil
		x.Drop()
		return Ready(Either[A, B]{Left: p.Value, IsLeft: true})
	}
	if p := x.b.Poll(cx); p.Ready {
		x.b = nil
		x.Drop()
		return Ready(Either[A, B]{Right: p.Value})
	}
	return Pending[Either[A, B]]()
}

func (x *selectFuture[A, B]) Drop() {
	if x.a != nil {
		drop(x.a)
		x.a = nil
	}
	if x.b != nil {
		drop(x.b)
		x.b = nil
	}
}

// YieldNow returns a future that is pending exactly once, waking itself, so
// that other ready tasks get a chance to run.
func YieldNow() Future[struct{}] {
	var yielded bool
	return PollFunc[struct{}](func(cx *Context) Poll[struct{}] {
		if yielded {
			return Ready(struct{}{})
		}
		yielded = true
		cx.Waker().Wake()
		return Pending[struct{}]()
	})
}
