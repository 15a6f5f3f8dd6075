package asyncrt

import (
	"github.com/eapache/queue"
)

// runQueue is a FIFO of runnable task ids, without duplicates.
// It is not safe for concurrent use, callers must hold the scheduler lock.
type runQueue struct {
	fifo    *queue.Queue
	members map[TaskID]struct{}
}

func newRunQueue() *runQueue {
	return &runQueue{
		fifo:    queue.New(),
		members: make(map[TaskID]struct{}),
	}
}

// push appends id, returning false if it was already queued.
func (x *runQueue) push(id TaskID) bool {
	if _, ok := x.members[id]; ok {
		return false
	}
	x.members[id] = struct{}{}
	x.fifo.Add(id)
	return true
}

// pop removes the oldest id, if any.
func (x *runQueue) pop() (TaskID, bool) {
	if x.fifo.Length() == 0 {
		return 0, false
	}
	id := x.fifo.Remove().(TaskID)
	delete(x.members, id)
	return id, true
}

func (x *runQueue) len() int {
	return x.fifo.Length()
}

// clear empties the queue.
func (x *runQueue) clear() {
	for x.fifo.Length() != 0 {
		x.fifo.Remove()
	}
	clear(x.members)
}
