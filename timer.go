package asyncrt

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is a pending deadline. index is the position in the heap, or -1
// once it has been removed (fired or cancelled).
type timerEntry struct {
	deadline time.Time
	slot     WakerSlot
	index    int
}

// timerHeap is a min-heap of timer entries, by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerDriver fires timer entries from a dedicated goroutine.
type timerDriver struct {
	log    *runtimeLogger
	stats  *counters
	notify chan struct{}
	halt   chan struct{}
	done   chan struct{}
	timers timerHeap
	mu     sync.Mutex
	halted bool
}

func newTimerDriver(log *runtimeLogger, stats *counters) *timerDriver {
	x := &timerDriver{
		log:    log,
		stats:  stats,
		notify: make(chan struct{}, 1),
		halt:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go x.run()
	return x
}

// add registers e, returning false if the driver has halted.
func (x *timerDriver) add(e *timerEntry) bool {
	x.mu.Lock()
	if x.halted {
		x.mu.Unlock()
		return false
	}
	heap.Push(&x.timers, e)
	earliest := x.timers[0] == e
	x.mu.Unlock()
	if earliest {
		select {
		case x.notify <- struct{}{}:
		default:
		}
	}
	return true
}

// remove cancels e, if it is still pending.
func (x *timerDriver) remove(e *timerEntry) {
	x.mu.Lock()
	if e.index >= 0 {
		heap.Remove(&x.timers, e.index)
	}
	x.mu.Unlock()
}

func (x *timerDriver) run() {
	defer close(x.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var fired []*timerEntry
	for {
		now := time.Now()
		wait := time.Duration(-1)

		x.mu.Lock()
		for len(x.timers) != 0 && !now.Before(x.timers[0].deadline) {
			fired = append(fired, heap.Pop(&x.timers).(*timerEntry))
		}
		if len(x.timers) != 0 {
			wait = x.timers[0].deadline.Sub(now)
		}
		x.mu.Unlock()

		for i, e := range fired {
			fired[i] = nil
			e.slot.Wake()
		}
		if len(fired) != 0 {
			x.stats.timersFired.Add(uint64(len(fired)))
			fired = fired[:0]
		}

		var expired <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			expired = timer.C
		}

		select {
		case <-x.halt:
			return
		case <-x.notify:
		case <-expired:
		}
		timer.Stop()
	}
}

// close halts the driver, discarding pending entries without waking them,
// and waits for its goroutine to exit.
func (x *timerDriver) close() {
	x.mu.Lock()
	if x.halted {
		x.mu.Unlock()
		<-x.done
		return
	}
	x.halted = true
	pending := len(x.timers)
	for _, e := range x.timers {
		e.index = -1
	}
	x.timers = nil
	x.mu.Unlock()

	close(x.halt)
	<-x.done
	x.log.debug().Int("discarded", pending).Log("timer driver halted")
}

// Sleep returns a future that completes no earlier than d after it was
// created. It must be polled within a runtime, it panics with [ErrNoRuntime]
// otherwise.
func Sleep(d time.Duration) Future[struct{}] {
	return &sleepFuture{deadline: time.Now().Add(d)}
}

// SleepUntil returns a future that completes no earlier than t.
// See also [Sleep].
func SleepUntil(t time.Time) Future[struct{}] {
	return &sleepFuture{deadline: t}
}

type sleepFuture struct {
	deadline time.Time
	driver   *timerDriver
	entry    *timerEntry
	done     bool
}

func (x *sleepFuture) Poll(cx *Context) Poll[struct{}] {
	if x.done {
		return Ready(struct{}{})
	}

	if x.entry == nil {
		a := loadAmbient()
		if a == nil {
			panic(ErrNoRuntime)
		}
		st, err := a.handle.resolve()
		if err != nil {
			// the runtime is closing, this task will be dropped
			return Pending[struct{}]()
		}
		x.entry = &timerEntry{deadline: x.deadline, index: -1}
		x.entry.slot.Register(cx.Waker())
		if !st.timers.add(x.entry) {
			return Pending[struct{}]()
		}
		x.driver = st.timers
	} else {
		// always before checking the deadline, or a firing could be missed
		x.entry.slot.Register(cx.Waker())
	}

	if time.Now().Before(x.deadline) {
		return Pending[struct{}]()
	}

	x.done = true
	x.release()
	return Ready(struct{}{})
}

// Drop cancels the timer entry, so no stale waker is invoked.
func (x *sleepFuture) Drop() {
	if x.entry != nil {
		x.release()
	}
}

func (x *sleepFuture) release() {
	x.entry.slot.Take()
	if x.driver != nil {
		x.driver.remove(x.entry)
	}
}
