package asyncrt

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

var runtimeIDCounter atomic.Uint64

// Runtime executes tasks, and drives the timers and socket readiness they
// wait on. It is the sole owner of its state: every [Handle], waker and
// socket refers to it weakly, and becomes inert once the runtime is closed.
//
// A Runtime must be closed when it is no longer needed. If it becomes
// unreachable while open, it will be closed by the garbage collector. The
// runtime is kept reachable for the duration of [BlockOn], but tasks spawned
// (and sockets bound) via a [Handle] do not keep it alive.
type Runtime struct {
	state  *runtimeState
	handle *Handle
}

// Handle is a non-owning reference to a [Runtime].
type Handle struct {
	state weak.Pointer[runtimeState]
	id    uint64
}

// Spawner is implemented by [*Runtime] and [*Handle].
type Spawner interface {
	resolve() (*runtimeState, error)
}

type runtimeState struct {
	sched     *scheduler
	timers    *timerDriver
	reactor   *reactor
	log       *runtimeLogger
	stats     *counters
	closeErr  error
	closeOnce sync.Once
	id        uint64
	closed    atomic.Bool
}

// NewCurrentThread creates a runtime that executes its tasks on the
// goroutine(s) calling [BlockOn].
func NewCurrentThread(opts ...Option) (*Runtime, error) {
	return newRuntime(currentThread, 0, opts)
}

// NewMultiThread creates a runtime that executes its tasks on a fixed pool of
// worker goroutines.
func NewMultiThread(workers int, opts ...Option) (*Runtime, error) {
	if workers < 1 {
		return nil, ErrInvalidWorkerCount
	}
	return newRuntime(multiThread, workers, opts)
}

func newRuntime(kind schedulerKind, workers int, opts []Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	id := runtimeIDCounter.Add(1)
	log := newRuntimeLogger(cfg, id)
	stats := new(counters)

	reactor, err := newReactor(cfg, log, stats)
	if err != nil {
		return nil, err
	}

	state := &runtimeState{
		sched:   newScheduler(kind, workers, cfg, log, stats),
		timers:  newTimerDriver(log, stats),
		reactor: reactor,
		log:     log,
		stats:   stats,
		id:      id,
	}
	rt := &Runtime{
		state:  state,
		handle: &Handle{state: weak.Make(state), id: id},
	}
	state.sched.start(&ambient{handle: rt.handle, driver: state.sched})

	runtime.AddCleanup(rt, func(state *runtimeState) {
		state.log.warning(logCategoryLeaked).Log("runtime garbage collected without being closed")
		_ = state.close()
	}, state)

	log.info().Str("scheduler", kind.String()).Int("workers", workers).Log("runtime started")
	return rt, nil
}

// Handle returns a non-owning reference to the runtime.
func (x *Runtime) Handle() *Handle { return x.handle }

// ID returns the process-unique id of the runtime.
func (x *Runtime) ID() uint64 { return x.state.id }

// Metrics returns a snapshot of the runtime's statistics.
func (x *Runtime) Metrics() Metrics {
	m := x.state.stats.snapshot()
	x.state.sched.gauges(&m)
	return m
}

// Close halts the runtime. Idle tasks are dropped, resolving their
// [JoinHandle] with a [*JoinError] (matching [ErrRuntimeClosed]), the timer
// driver and reactor are stopped, and worker goroutines are joined (unless
// Close is called from one). Sockets bound to the runtime become unusable,
// but must still be closed.
//
// Close returns [ErrRuntimeClosed] if it has already been called.
func (x *Runtime) Close() error {
	if x.state.closed.Load() {
		return ErrRuntimeClosed
	}
	return x.state.close()
}

func (x *Runtime) resolve() (*runtimeState, error) {
	if x == nil {
		return nil, ErrNoRuntime
	}
	if x.state.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	return x.state, nil
}

// ID returns the id of the runtime referenced by the handle.
func (x *Handle) ID() uint64 { return x.id }

// IsClosed reports whether the referenced runtime has been closed, or
// garbage collected.
func (x *Handle) IsClosed() bool {
	_, err := x.resolve()
	return err != nil
}

func (x *Handle) resolve() (*runtimeState, error) {
	if x == nil {
		return nil, ErrNoRuntime
	}
	state := x.state.Value()
	if state == nil || state.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	return state, nil
}

func (x *runtimeState) close() error {
	x.closeOnce.Do(func() {
		x.closed.Store(true)
		x.sched.close()
		x.timers.close()
		x.closeErr = x.reactor.close()
		if !x.sched.isDriver() {
			x.sched.join()
		}
		x.log.info().Log("runtime closed")
	})
	return x.closeErr
}

// Spawn submits f to the runtime installed on the calling goroutine (see
// [Current]), panicking with [ErrNoRuntime] if there is none.
func Spawn[T any](f Future[T]) *JoinHandle[T] {
	a := loadAmbient()
	if a == nil {
		panic(ErrNoRuntime)
	}
	return SpawnOn(a.handle, f)
}

// SpawnOn submits f to the runtime referenced by s. If the runtime has been
// closed, the task is dropped immediately, and its [JoinHandle] resolves with
// a [*JoinError].
func SpawnOn[T any](s Spawner, f Future[T]) *JoinHandle[T] {
	t, rx := newSpawned(f)
	state, err := s.resolve()
	if err != nil {
		t.drop(0, err)
		return &JoinHandle[T]{rx: rx}
	}
	id, ok := state.sched.submit(t, false)
	if !ok {
		t.drop(id, ErrRuntimeClosed)
		state.stats.dropped.Add(1)
	}
	return &JoinHandle[T]{rx: rx, id: id}
}

// BlockOn runs f to completion on rt, returning its output.
//
// For a current-thread runtime the calling goroutine drives the runtime,
// polling f and any other ready tasks, until f completes. For a multi-thread
// runtime the calling goroutine waits for f to complete on the worker pool,
// or, if it is itself one of the runtime's workers (a nested call), helps to
// drive the pool meanwhile. BlockOn may be called from any goroutine, and
// nested within a task.
//
// The runtime is installed as the ambient runtime of the calling goroutine
// for the duration, and the previous value is restored on return, including
// on panic.
//
// The error is non-nil if f panicked, or rt was closed before f completed,
// see [JoinError].
func BlockOn[T any](rt *Runtime, f Future[T]) (T, error) {
	// rt must stay reachable until f completes, else its cleanup may close it
	defer runtime.KeepAlive(rt)

	var zero T

	state, err := rt.resolve()
	if err != nil {
		return zero, err
	}

	t, rx := newSpawned(f)
	id, ok := state.sched.submit(t, true)
	if !ok {
		t.drop(id, ErrRuntimeClosed)
		state.stats.dropped.Add(1)
		return zero, ErrRuntimeClosed
	}

	done := rx.Done()
	isDone := func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	switch {
	case state.sched.kind == currentThread:
		defer enter(&ambient{handle: rt.handle})()
		state.sched.drive(isDone)

	case state.sched.isDriver():
		state.sched.drive(isDone)

	default:
		defer enter(&ambient{handle: rt.handle})()
		<-done
	}

	r, ok := rx.TryRecv()
	if !ok {
		return zero, ErrRuntimeClosed
	}
	return r.Get()
}
