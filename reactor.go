//go:build linux || darwin

package asyncrt

import (
	"sync"
	"sync/atomic"
	"time"
)

// ioEvents represents the readiness reported for a registration.
type ioEvents uint32

const (
	ioRead ioEvents = 1 << iota
	ioWrite
	ioError
	ioHangup
)

// direction indexes the per-direction readiness of an ioSource.
type direction uint8

const (
	dirRead direction = iota
	dirWrite
)

func (d direction) String() string {
	if d == dirRead {
		return "read"
	}
	return "write"
}

// wakeToken is reserved for the poller's own wakeup descriptor.
const wakeToken uint32 = 0

// reactor dispatches readiness edges, from a dedicated goroutine, to the
// operations waiting on registered descriptors.
type reactor struct {
	poller    *poller
	log       *runtimeLogger
	stats     *counters
	sources   map[uint32]*ioSource
	done      chan struct{}
	mu        sync.Mutex
	nextToken uint32
	halted    atomic.Bool
}

func newReactor(cfg *runtimeOptions, log *runtimeLogger, stats *counters) (*reactor, error) {
	p, err := openPoller(cfg.eventBufferSize)
	if err != nil {
		return nil, err
	}
	x := &reactor{
		poller:  p,
		log:     log,
		stats:   stats,
		sources: make(map[uint32]*ioSource),
		done:    make(chan struct{}),
	}
	go x.run()
	return x, nil
}

func (x *reactor) run() {
	defer close(x.done)
	for !x.halted.Load() {
		n, err := x.poller.wait(x.dispatch)
		if err != nil {
			if x.halted.Load() {
				return
			}
			x.log.warning(logCategoryReactorWait).Err(err).Log("reactor wait failed")
			time.Sleep(time.Millisecond)
			continue
		}
		if n != 0 {
			x.stats.ioEvents.Add(uint64(n))
		}
	}
}

func (x *reactor) dispatch(token uint32, events ioEvents) {
	x.mu.Lock()
	src := x.sources[token]
	x.mu.Unlock()
	if src != nil {
		src.edge(events)
	}
}

// register adds fd to the poller, returning its source.
func (x *reactor) register(fd int) (*ioSource, error) {
	x.mu.Lock()
	if x.halted.Load() {
		x.mu.Unlock()
		return nil, ErrRuntimeClosed
	}
	// skip the wakeup token, and any still live after wrapping
	for {
		x.nextToken++
		if x.nextToken == wakeToken {
			continue
		}
		if _, ok := x.sources[x.nextToken]; !ok {
			break
		}
	}
	src := newIOSource(x, fd, x.nextToken)
	x.sources[src.token] = src
	x.mu.Unlock()

	if err := x.poller.add(fd, src.token); err != nil {
		x.mu.Lock()
		delete(x.sources, src.token)
		x.mu.Unlock()
		return nil, err
	}
	x.log.debug().Int("fd", fd).Uint64("token", uint64(src.token)).Log("registered descriptor")
	return src, nil
}

// deregister removes src from the poller, if the reactor is still running.
func (x *reactor) deregister(src *ioSource) error {
	x.mu.Lock()
	delete(x.sources, src.token)
	x.mu.Unlock()
	if x.halted.Load() {
		return nil
	}
	return x.poller.remove(src.fd)
}

// close halts the reactor goroutine, waits for it, then releases the poller.
// Registered descriptors are not closed, but their pending operations are
// woken, to observe the closure.
func (x *reactor) close() error {
	x.mu.Lock()
	if x.halted.Swap(true) {
		x.mu.Unlock()
		<-x.done
		return nil
	}
	sources := x.sources
	x.sources = make(map[uint32]*ioSource)
	x.mu.Unlock()

	if err := x.poller.wake(); err != nil {
		x.log.warning(logCategoryReactorWake).Err(err).Log("reactor wakeup failed")
	}
	<-x.done

	for _, src := range sources {
		src.edge(ioRead | ioWrite)
	}
	return x.poller.close()
}

// ioWaiter is the waker slot of a single pending operation. Re-polling the
// operation replaces its waker.
type ioWaiter struct {
	waker Waker
}

type ioDirection struct {
	waiters map[*ioWaiter]struct{}
	// tick counts edges, to detect one arriving during a syscall
	tick  uint64
	ready bool
}

// ioSource is the readiness state of a registered descriptor.
type ioSource struct {
	reactor *reactor
	dirs    [2]ioDirection
	mu      sync.Mutex
	fd      int
	token   uint32
	closed  bool
}

func newIOSource(r *reactor, fd int, token uint32) *ioSource {
	src := &ioSource{reactor: r, fd: fd, token: token}
	src.dirs[dirRead].waiters = make(map[*ioWaiter]struct{})
	src.dirs[dirWrite].waiters = make(map[*ioWaiter]struct{})
	// the registration reports any existing read readiness, but the write
	// buffer of a fresh socket is assumed to have room
	src.dirs[dirWrite].ready = true
	return src
}

// edge marks the indicated directions ready, waking every waiting operation.
func (x *ioSource) edge(events ioEvents) {
	var wake []Waker
	x.mu.Lock()
	if events&(ioRead|ioError|ioHangup) != 0 {
		wake = x.dirs[dirRead].fire(wake)
	}
	if events&(ioWrite|ioError|ioHangup) != 0 {
		wake = x.dirs[dirWrite].fire(wake)
	}
	x.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
}

func (x *ioDirection) fire(wake []Waker) []Waker {
	x.ready = true
	x.tick++
	for w := range x.waiters {
		if w.waker != nil {
			wake = append(wake, w.waker)
			w.waker = nil
		}
		delete(x.waiters, w)
	}
	return wake
}

// ioStatus is the outcome of a readiness-gated operation attempt.
type ioStatus uint8

const (
	ioDone ioStatus = iota
	ioPending
)

// attempt runs op if d is ready, retrying interrupted calls. If d is not
// ready, or op would block (and no edge arrived meanwhile), w is registered
// with the waker from cx, and ioPending is returned, without calling op.
func (x *ioSource) attempt(cx *Context, d direction, w *ioWaiter, op func() error) (ioStatus, error) {
	for {
		x.mu.Lock()
		if x.closed {
			x.mu.Unlock()
			return ioDone, ErrSocketClosed
		}
		if x.reactor.halted.Load() {
			x.mu.Unlock()
			return ioDone, ErrRuntimeClosed
		}
		dir := &x.dirs[d]
		if !dir.ready {
			w.waker = cx.Waker()
			dir.waiters[w] = struct{}{}
			x.mu.Unlock()
			return ioPending, nil
		}
		tick := dir.tick
		x.mu.Unlock()

		err := op()
		switch {
		case err == nil:
			x.forget(d, w)
			return ioDone, nil

		case isInterrupted(err):
			continue

		case isWouldBlock(err):
			x.mu.Lock()
			if dir.tick != tick {
				// an edge arrived during the syscall
				x.mu.Unlock()
				continue
			}
			dir.ready = false
			w.waker = cx.Waker()
			dir.waiters[w] = struct{}{}
			x.mu.Unlock()
			return ioPending, nil

		default:
			x.forget(d, w)
			return ioDone, err
		}
	}
}

// forget discards w, without waking it.
func (x *ioSource) forget(d direction, w *ioWaiter) {
	x.mu.Lock()
	delete(x.dirs[d].waiters, w)
	w.waker = nil
	x.mu.Unlock()
}

// close deregisters and closes the descriptor, exactly once. Pending
// operations are discarded without being woken.
func (x *ioSource) close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return ErrSocketClosed
	}
	x.closed = true
	for d := range x.dirs {
		for w := range x.dirs[d].waiters {
			w.waker = nil
		}
		clear(x.dirs[d].waiters)
	}
	x.mu.Unlock()

	if err := x.reactor.deregister(x); err != nil {
		x.reactor.log.debug().Int("fd", x.fd).Err(err).Log("deregister failed")
	}
	return closeFD(x.fd)
}

func (x *ioSource) isClosed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.closed
}

// ioOp is a pending socket operation, as a future.
type ioOp[T any] struct {
	src    *ioSource
	call   func() (T, error)
	wrap   func(error) error
	waiter ioWaiter
	result Result[T]
	dir    direction
	done   bool
}

func (x *ioOp[T]) Poll(cx *Context) Poll[Result[T]] {
	if x.done {
		return Ready(x.result)
	}
	var value T
	status, err := x.src.attempt(cx, x.dir, &x.waiter, func() (err error) {
		value, err = x.call()
		return err
	})
	if status == ioPending {
		return Pending[Result[T]]()
	}
	x.done = true
	if err != nil {
		x.result = Result[T]{Err: x.wrap(err)}
	} else {
		x.result = Result[T]{Value: value}
	}
	return Ready(x.result)
}

// Drop abandons the operation, discarding its registration.
func (x *ioOp[T]) Drop() {
	if !x.done {
		x.src.forget(x.dir, &x.waiter)
	}
}
