package asyncrt

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run returns a future that calls fn on first poll.
func run(fn func()) Future[struct{}] {
	return Lazy(func() struct{} { fn(); return struct{}{} })
}

func TestCurrentThread_Simple(t *testing.T) {
	rt := newCurrentThread(t)
	assert.True(t, blockOn(t, rt, Value(true)))
	assert.Equal(t, 42, blockOn(t, rt, Value(42)))
}

func TestCurrentThread_SideEffect(t *testing.T) {
	var flag bool
	func() {
		rt, err := NewCurrentThread()
		require.NoError(t, err)
		defer rt.Close()
		blockOn(t, rt, run(func() { flag = true }))
	}()
	assert.True(t, flag)
}

func TestCurrentThread_PingPong(t *testing.T) {
	rt := newCurrentThread(t)

	tx1, rx1 := NewOneshot[int]()
	tx2, rx2 := NewOneshot[int]()
	SpawnOn(rt, Then(await[int](t, rx1), func(v int) Future[struct{}] {
		assert.Equal(t, 1, v)
		tx2.Send(2)
		return Value(struct{}{})
	}))

	res := blockOn(t, rt, Then(run(func() { tx1.Send(1) }), func(struct{}) Future[int] {
		return await[int](t, rx2)
	}))
	assert.Equal(t, 2, res)
}

func TestCurrentThread_ThreadedPingPong(t *testing.T) {
	tx1, rx1 := NewOneshot[int]()
	tx2, rx2 := NewOneshot[int]()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt, err := NewCurrentThread()
		if !assert.NoError(t, err) {
			return
		}
		defer rt.Close()
		_, err = BlockOn(rt, Then(await[int](t, rx1), func(v int) Future[struct{}] {
			assert.Equal(t, 1, v)
			tx2.Send(2)
			return Value(struct{}{})
		}))
		assert.NoError(t, err)
	}()

	rt := newCurrentThread(t)
	res := blockOn(t, rt, Then(run(func() { tx1.Send(1) }), func(struct{}) Future[int] {
		return await[int](t, rx2)
	}))
	assert.Equal(t, 2, res)
	recvTimeout(t, done, 5*time.Second)
}

func TestCurrentThread_GlobalSpawn(t *testing.T) {
	rt := newCurrentThread(t)

	tx1, rx1 := NewOneshot[int]()
	tx2, rx2 := NewOneshot[int]()

	res := blockOn(t, rt, Then(run(func() {
		Spawn(Then(await[int](t, rx1), func(v int) Future[struct{}] {
			assert.Equal(t, 1, v)
			tx2.Send(2)
			return Value(struct{}{})
		}))
		tx1.Send(1)
	}), func(struct{}) Future[int] {
		return await[int](t, rx2)
	}))
	assert.Equal(t, 2, res)
}

// wakeNonexistentTask spawns a task that completes with its own waker, then
// repeatedly wakes it (after completion) while spawning more tasks.
func wakeNonexistentTask(t *testing.T) Future[[]int] {
	spawnWaker := Lazy(func() *JoinHandle[Waker] { return Spawn(currentWaker()) })
	return Then(spawnWaker, func(h *JoinHandle[Waker]) Future[[]int] {
		return Then(await[Waker](t, h), func(w Waker) Future[[]int] {
			handles := make([]Future[int], 0, 10)
			for range 10 {
				w.Wake()
				handles = append(handles, await[int](t, Spawn(Value(42))))
			}
			return JoinAll(handles...)
		})
	})
}

func TestCurrentThread_WakeNonexistentTask(t *testing.T) {
	rt := newCurrentThread(t)
	values := blockOn(t, rt, wakeNonexistentTask(t))
	require.Len(t, values, 10)
	for _, v := range values {
		assert.Equal(t, 42, v)
	}
}

func TestCurrentThread_SpawnBeforeBlockOn(t *testing.T) {
	rt := newCurrentThread(t)
	h := SpawnOn(rt, Value("queued"))
	assert.False(t, h.IsFinished())
	r := blockOn(t, rt, Future[Result[string]](h))
	assert.Equal(t, Result[string]{Value: "queued"}, r)
	assert.True(t, h.IsFinished())
}

func TestCurrentThread_NestedBlockOn(t *testing.T) {
	rt := newCurrentThread(t)
	other := newCurrentThread(t)

	res := blockOn(t, rt, Lazy(func() int {
		inner, err := BlockOn(rt, Then(Sleep(time.Millisecond), func(struct{}) Future[int] {
			id, ok := RuntimeID()
			assert.True(t, ok)
			assert.Equal(t, rt.ID(), id)
			return Value(1)
		}))
		assert.NoError(t, err)

		second, err := BlockOn(other, Lazy(func() int {
			id, _ := RuntimeID()
			assert.Equal(t, other.ID(), id)
			return 2
		}))
		assert.NoError(t, err)

		// restored after the nested calls
		id, ok := RuntimeID()
		assert.True(t, ok)
		assert.Equal(t, rt.ID(), id)
		return inner + second
	}))
	assert.Equal(t, 3, res)
}

func TestCurrentThread_BlockOnFromManyGoroutines(t *testing.T) {
	rt := newCurrentThread(t)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Go(func() {
			v, err := BlockOn(rt, Then(Sleep(time.Millisecond), func(struct{}) Future[int] {
				return Value(i)
			}))
			assert.NoError(t, err)
			assert.Equal(t, i, v)
		})
	}
	wg.Wait()
}

// syncBuffer is a goroutine-safe bytes.Buffer.
type syncBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.String()
}

func TestCurrentThread_TaskPanic(t *testing.T) {
	var buf syncBuffer
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)))
	rt := newCurrentThread(t, WithLogger(logger.Logger()), WithName("panicky"))

	cause := errors.New("boom")
	_, err := BlockOn(rt, Lazy(func() int { panic(cause) }))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskPanicked)
	assert.ErrorIs(t, err, cause)
	var joinErr *JoinError
	require.ErrorAs(t, err, &joinErr)
	assert.Equal(t, cause, joinErr.Panic)

	// the runtime keeps working
	assert.Equal(t, 1, blockOn(t, rt, Value(1)))

	out := buf.String()
	assert.Contains(t, out, `"msg":"task panicked"`)
	assert.Contains(t, out, `"name":"panicky"`)
	assert.Contains(t, out, `"err":"boom"`)

	m := rt.Metrics()
	assert.Equal(t, uint64(1), m.Panicked)
	assert.Equal(t, uint64(2), m.Spawned)
	assert.Equal(t, uint64(1), m.Completed)
}

// pendingForever never completes, recording whether it was dropped.
type pendingForever struct {
	dropped chan struct{}
}

func (x *pendingForever) Poll(*Context) Poll[int] { return Pending[int]() }

func (x *pendingForever) Drop() { close(x.dropped) }

func TestCurrentThread_CloseDropsTasks(t *testing.T) {
	rt, err := NewCurrentThread()
	require.NoError(t, err)

	f := &pendingForever{dropped: make(chan struct{})}
	h := SpawnOn(rt, f)
	blockOn(t, rt, YieldNow())
	assert.False(t, h.IsFinished())

	require.NoError(t, rt.Close())
	recvTimeout(t, f.dropped, time.Second)

	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrTaskDropped)
	assert.ErrorIs(t, err, ErrRuntimeClosed)

	assert.ErrorIs(t, rt.Close(), ErrRuntimeClosed)
	assert.True(t, rt.Handle().IsClosed())

	_, err = BlockOn(rt, Value(1))
	assert.ErrorIs(t, err, ErrRuntimeClosed)

	late := SpawnOn(rt.Handle(), Value(2))
	_, err = late.Wait()
	assert.ErrorIs(t, err, ErrTaskDropped)
}

func TestCurrentThread_CloseFromTask(t *testing.T) {
	rt, err := NewCurrentThread()
	require.NoError(t, err)
	_, err = BlockOn(rt, PollFn(func(*Context) Poll[int] {
		assert.NoError(t, rt.Close())
		return Pending[int]()
	}))
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	assert.ErrorIs(t, err, ErrTaskDropped)
}
