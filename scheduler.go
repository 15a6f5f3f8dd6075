package asyncrt

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"weak"
)

// schedulerKind selects the scheduling strategy, fixed at construction.
type schedulerKind uint8

const (
	// currentThread runs tasks on whichever goroutine calls BlockOn.
	currentThread schedulerKind = iota
	// multiThread runs tasks on a fixed pool of worker goroutines.
	multiThread
)

func (k schedulerKind) String() string {
	switch k {
	case currentThread:
		return "current_thread"
	case multiThread:
		return "multi_thread"
	default:
		return fmt.Sprintf("schedulerKind(%d)", uint8(k))
	}
}

// scheduler owns the task table and run queue.
//
// A task is removed from tasks before it is polled, and reinserted only after
// the poll returns, so the lock is never held across a poll, and a task can
// never be polled concurrently. While being polled a task is tracked in
// running, where a wake is recorded (rather than lost), to requeue the task
// once it is reinserted.
type scheduler struct {
	cond    sync.Cond
	tasks   map[TaskID]runnable
	running map[TaskID]bool
	roots   map[TaskID]struct{}
	queue   *runQueue
	log     *runtimeLogger
	stats   *counters
	self    weak.Pointer[scheduler]
	// ambient is installed on each worker goroutine
	ambient      *ambient
	workers      sync.WaitGroup
	mu           sync.Mutex
	nextID       TaskID
	numWorkers   int
	kind         schedulerKind
	halted       bool
	lockOSThread bool
}

func newScheduler(kind schedulerKind, workers int, cfg *runtimeOptions, log *runtimeLogger, stats *counters) *scheduler {
	s := &scheduler{
		tasks:        make(map[TaskID]runnable),
		running:      make(map[TaskID]bool),
		roots:        make(map[TaskID]struct{}),
		queue:        newRunQueue(),
		log:          log,
		stats:        stats,
		numWorkers:   workers,
		kind:         kind,
		lockOSThread: cfg.lockOSThread,
	}
	s.cond.L = &s.mu
	s.self = weak.Make(s)
	return s
}

// start launches the worker pool, for the multi-thread variant.
func (s *scheduler) start(a *ambient) {
	if s.kind != multiThread {
		return
	}
	s.ambient = a
	for i := range s.numWorkers {
		s.workers.Go(func() { s.worker(i) })
	}
}

func (s *scheduler) worker(index int) {
	if s.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer enter(s.ambient)()
	s.log.debug().Int("worker", index).Log("worker started")
	s.drive(nil)
	s.log.debug().Int("worker", index).Log("worker stopped")
}

// submit inserts and enqueues t, returning false if the scheduler has halted,
// in which case the caller must drop t.
func (s *scheduler) submit(t runnable, root bool) (TaskID, bool) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.halted {
		s.mu.Unlock()
		return id, false
	}
	s.insertLocked(id, t)
	if root {
		s.roots[id] = struct{}{}
	}
	s.queue.push(id)
	s.notifyLocked()
	s.mu.Unlock()
	s.stats.spawned.Add(1)
	s.log.debug().Uint64("task", uint64(id)).Bool("root", root).Log("task spawned")
	return id, true
}

func (s *scheduler) insertLocked(id TaskID, t runnable) {
	if _, ok := s.tasks[id]; ok {
		panic(fmt.Errorf("asyncrt: duplicate task id %d", id))
	}
	if _, ok := s.running[id]; ok {
		panic(fmt.Errorf("asyncrt: task id %d inserted while being polled", id))
	}
	s.tasks[id] = t
}

func (s *scheduler) notifyLocked() {
	if s.kind == currentThread {
		// the driving goroutine(s) may be waiting on their root, not just for
		// work, so all must observe the change
		s.cond.Broadcast()
	} else {
		s.cond.Signal()
	}
}

// wake queues id if it is idle, or flags it for requeue if it is being polled.
// Unknown ids, and wakes after halting, are ignored.
func (s *scheduler) wake(id TaskID) {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return
	}
	if woken, ok := s.running[id]; ok {
		if !woken {
			s.running[id] = true
		}
		s.mu.Unlock()
		return
	}
	if _, ok := s.tasks[id]; !ok || !s.queue.push(id) {
		s.mu.Unlock()
		return
	}
	s.notifyLocked()
	s.mu.Unlock()
	s.stats.wakes.Add(1)
}

// drive runs tasks until done (evaluated with the lock held) returns true, or
// the scheduler halts. A nil done runs until halted.
func (s *scheduler) drive(done func() bool) {
	s.mu.Lock()
	for {
		if s.halted || (done != nil && done()) {
			s.mu.Unlock()
			return
		}

		id, ok := s.queue.pop()
		if !ok {
			s.cond.Wait()
			continue
		}
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		delete(s.tasks, id)
		s.running[id] = false
		s.mu.Unlock()

		complete := s.poll(id, t)

		s.mu.Lock()
		woken := s.running[id]
		delete(s.running, id)

		switch {
		case complete:
			if _, ok := s.roots[id]; ok {
				delete(s.roots, id)
				s.cond.Broadcast()
			}

		case s.halted:
			s.mu.Unlock()
			t.drop(id, ErrRuntimeClosed)
			s.stats.dropped.Add(1)
			s.mu.Lock()

		default:
			s.insertLocked(id, t)
			if woken && s.queue.push(id) {
				s.notifyLocked()
			}
		}
	}
}

// poll polls t once, recovering (and reporting) any panic.
func (s *scheduler) poll(id TaskID, t runnable) (complete bool) {
	s.stats.polls.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.stats.panicked.Add(1)
			s.log.taskPanicked(id, r, time.Since(start))
			t.fail(id, r)
			complete = true
		}
	}()
	if t.poll(&Context{waker: &taskWaker{sched: s.self, id: id}}) {
		s.stats.completed.Add(1)
		return true
	}
	return false
}

// close halts the scheduler, dropping every idle task. Tasks being polled are
// dropped by their driver once the poll returns.
func (s *scheduler) close() {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return
	}
	s.halted = true
	tasks := s.tasks
	s.tasks = make(map[TaskID]runnable)
	s.queue.clear()
	clear(s.roots)
	s.cond.Broadcast()
	s.mu.Unlock()

	for id, t := range tasks {
		t.drop(id, ErrRuntimeClosed)
		s.stats.dropped.Add(1)
	}
	s.log.debug().Int("dropped", len(tasks)).Log("scheduler halted")
}

// join waits for the worker pool to exit. It must not be called by a worker.
func (s *scheduler) join() {
	s.workers.Wait()
}

// isDriver reports whether the calling goroutine is one of this scheduler's
// workers.
func (s *scheduler) isDriver() bool {
	a := loadAmbient()
	return a != nil && a.driver == s
}

func (s *scheduler) gauges(m *Metrics) {
	s.mu.Lock()
	m.Queued = s.queue.len()
	m.Tasks = len(s.tasks)
	s.mu.Unlock()
	if s.kind == multiThread {
		m.Workers = s.numWorkers
	}
}

// taskWaker wakes a task by id. It holds only a weak reference to its
// scheduler, waking after the scheduler is gone is a no-op.
type taskWaker struct {
	sched weak.Pointer[scheduler]
	id    TaskID
}

func (x *taskWaker) Wake() {
	if s := x.sched.Value(); s != nil {
		s.wake(x.id)
	}
}
