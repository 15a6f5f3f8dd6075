package asyncrt

import (
	"sync"
)

// Waker re-queues the task it was issued for. Wake is safe to call from any
// goroutine, any number of times; late or duplicate calls are no-ops.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to a [Waker].
type WakerFunc func()

// Wake implements [Waker].
func (f WakerFunc) Wake() {
	if f != nil {
		f()
	}
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// NoopWaker returns a [Waker] that does nothing.
func NoopWaker() Waker { return noopWaker{} }

// WakerSlot is a single-slot waker cell. Registering a waker replaces any
// previous registration, so only the most recently registered waker is ever
// invoked by [WakerSlot.Wake].
//
// The zero value is ready to use.
type WakerSlot struct {
	mu    sync.Mutex
	waker Waker
}

// Register stores w, discarding the previous registration.
func (x *WakerSlot) Register(w Waker) {
	x.mu.Lock()
	x.waker = w
	x.mu.Unlock()
}

// Take removes and returns the registered waker, which may be nil.
func (x *WakerSlot) Take() Waker {
	x.mu.Lock()
	w := x.waker
	x.waker = nil
	x.mu.Unlock()
	return w
}

// Wake takes the registered waker (if any) and invokes it, outside the lock.
func (x *WakerSlot) Wake() {
	if w := x.Take(); w != nil {
		w.Wake()
	}
}
