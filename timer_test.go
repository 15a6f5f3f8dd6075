package asyncrt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleep_Elapsed(t *testing.T) {
	for _, rt := range []*Runtime{newCurrentThread(t), newMultiThread(t, 2)} {
		const d = 20 * time.Millisecond
		start := time.Now()
		blockOn(t, rt, Sleep(d))
		assert.GreaterOrEqual(t, time.Since(start), d)
	}
}

func TestSleep_ZeroIsImmediate(t *testing.T) {
	rt := newCurrentThread(t)
	blockOn(t, rt, Sleep(0))
	blockOn(t, rt, SleepUntil(time.Now().Add(-time.Second)))
}

func TestSleepUntil(t *testing.T) {
	rt := newCurrentThread(t)
	deadline := time.Now().Add(15 * time.Millisecond)
	blockOn(t, rt, SleepUntil(deadline))
	assert.False(t, time.Now().Before(deadline))
}

func TestSleep_OnlyLatestWaker(t *testing.T) {
	rt := newCurrentThread(t)
	sleep := Sleep(20 * time.Millisecond)
	var wakers []*countingWaker

	// polls the sleep once per counting waker, then awaits it normally
	var poll func(n int) Future[struct{}]
	poll = func(n int) Future[struct{}] {
		if n == 0 {
			return sleep
		}
		return Then(newCountingWaker(), func(w *countingWaker) Future[struct{}] {
			wakers = append(wakers, w)
			assert.True(t, sleep.Poll(NewContext(w)).IsPending())
			return poll(n - 1)
		})
	}

	blockOn(t, rt, Then(poll(3), func(struct{}) Future[struct{}] {
		// let any stray wakes land
		return Sleep(10 * time.Millisecond)
	}))

	require.Len(t, wakers, 3)
	for _, w := range wakers {
		assert.Zero(t, w.count())
	}
	assert.Eventually(t, func() bool { return rt.Metrics().TimersFired == 2 }, time.Second, time.Millisecond)
}

func TestSleep_OnlyLatestWakerInvoked(t *testing.T) {
	rt := newCurrentThread(t)
	sleep := Sleep(10 * time.Millisecond)

	var first, second *countingWaker
	blockOn(t, rt, Then(newCountingWaker(), func(w *countingWaker) Future[struct{}] {
		first = w
		assert.True(t, sleep.Poll(NewContext(w)).IsPending())
		return Then(newCountingWaker(), func(w *countingWaker) Future[struct{}] {
			second = w
			// the task completes once the second waker fires
			return PollFn(func(*Context) Poll[struct{}] {
				return sleep.Poll(NewContext(w))
			})
		})
	}))

	assert.Zero(t, first.count())
	assert.Equal(t, int64(1), second.count())
}

func TestSleep_DropRemovesEntry(t *testing.T) {
	rt := newCurrentThread(t)
	state, err := rt.resolve()
	require.NoError(t, err)

	sleep := Sleep(time.Hour)
	blockOn(t, rt, Then(currentWaker(), func(w Waker) Future[struct{}] {
		assert.True(t, sleep.Poll(NewContext(w)).IsPending())
		return Value(struct{}{})
	}))

	state.timers.mu.Lock()
	assert.Len(t, state.timers.timers, 1)
	state.timers.mu.Unlock()

	drop(sleep)

	state.timers.mu.Lock()
	assert.Empty(t, state.timers.timers)
	state.timers.mu.Unlock()
}

func TestSleep_Race(t *testing.T) {
	rt := newCurrentThread(t)
	r := blockOn(t, rt, Race(
		Map(Sleep(time.Hour), func(struct{}) string { return "slow" }),
		Map(Sleep(time.Millisecond), func(struct{}) string { return "fast" }),
	))
	assert.Equal(t, Raced[string]{Value: "fast", Index: 1}, r)

	state, err := rt.resolve()
	require.NoError(t, err)
	state.timers.mu.Lock()
	assert.Empty(t, state.timers.timers)
	state.timers.mu.Unlock()
}

func TestSleep_NoRuntime(t *testing.T) {
	assert.PanicsWithValue(t, ErrNoRuntime, func() {
		Sleep(time.Millisecond).Poll(NewContext(nil))
	})
}

func TestTimerDriver_CloseDiscards(t *testing.T) {
	stats := new(counters)
	d := newTimerDriver(&runtimeLogger{}, stats)

	var woken int
	e := &timerEntry{deadline: time.Now().Add(time.Hour), index: -1}
	e.slot.Register(WakerFunc(func() { woken++ }))
	require.True(t, d.add(e))

	d.close()
	d.close()
	assert.Equal(t, 0, woken)
	assert.Equal(t, -1, e.index)
	assert.False(t, d.add(&timerEntry{deadline: time.Now(), index: -1}))
}

func TestTimerDriver_FiresInOrder(t *testing.T) {
	stats := new(counters)
	d := newTimerDriver(&runtimeLogger{}, stats)
	defer d.close()

	fired := make(chan int, 3)
	now := time.Now()
	for _, i := range []int{2, 0, 1} {
		e := &timerEntry{deadline: now.Add(time.Duration(i+1) * 5 * time.Millisecond), index: -1}
		e.slot.Register(WakerFunc(func() { fired <- i }))
		require.True(t, d.add(e))
	}

	for i := range 3 {
		assert.Equal(t, i, recvTimeout(t, fired, time.Second))
	}
	assert.Eventually(t, func() bool { return stats.timersFired.Load() == 3 }, time.Second, time.Millisecond)
}
