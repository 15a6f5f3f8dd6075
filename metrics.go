package asyncrt

import (
	"sync/atomic"
)

// Metrics is a point-in-time snapshot of runtime statistics.
//
// Counters are cumulative since the runtime was created. Queued and Tasks are
// gauges, sampled under the scheduler lock.
type Metrics struct {
	// Spawned is the number of tasks submitted, including BlockOn roots.
	Spawned uint64
	// Completed is the number of tasks that returned a value.
	Completed uint64
	// Panicked is the number of tasks whose poll panicked.
	Panicked uint64
	// Dropped is the number of tasks discarded before completion.
	Dropped uint64
	// Polls is the number of task polls.
	Polls uint64
	// Wakes is the number of wakes that queued a task.
	Wakes uint64
	// TimersFired is the number of timer entries whose deadline elapsed.
	TimersFired uint64
	// IOEvents is the number of readiness events handled by the reactor.
	IOEvents uint64
	// Queued is the run queue length.
	Queued int
	// Tasks is the number of live, idle tasks (excluding any being polled).
	Tasks int
	// Workers is the number of worker goroutines (0 for current-thread).
	Workers int
}

// counters are the live, atomic backing for Metrics.
type counters struct {
	spawned     atomic.Uint64
	completed   atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
	polls       atomic.Uint64
	wakes       atomic.Uint64
	timersFired atomic.Uint64
	ioEvents    atomic.Uint64
}

func (x *counters) snapshot() Metrics {
	return Metrics{
		Spawned:     x.spawned.Load(),
		Completed:   x.completed.Load(),
		Panicked:    x.panicked.Load(),
		Dropped:     x.dropped.Load(),
		Polls:       x.polls.Load(),
		Wakes:       x.wakes.Load(),
		TimersFired: x.timersFired.Load(),
		IOEvents:    x.ioEvents.Load(),
	}
}
