package asyncrt

import (
	"runtime"
	"sync"
)

// ambient is the runtime installed on a goroutine.
type ambient struct {
	handle *Handle
	// driver is set on goroutines that drive the scheduler's run queue, i.e.
	// multi-thread workers.
	driver *scheduler
}

// ambientSlots maps goroutine id to *ambient.
var ambientSlots sync.Map

// enter installs a as the ambient runtime of the calling goroutine. The
// returned function restores the previous value, and must be deferred.
func enter(a *ambient) (restore func()) {
	gid := getGoroutineID()
	prev, had := ambientSlots.Swap(gid, a)
	return func() {
		if had {
			ambientSlots.Store(gid, prev)
		} else {
			ambientSlots.Delete(gid)
		}
	}
}

// loadAmbient returns the ambient runtime of the calling goroutine, or nil.
func loadAmbient() *ambient {
	if v, ok := ambientSlots.Load(getGoroutineID()); ok {
		return v.(*ambient)
	}
	return nil
}

// Current returns a handle to the runtime installed on the calling goroutine.
// A runtime is installed for the duration of [BlockOn], and on the worker
// goroutines of a multi-thread runtime.
func Current() (*Handle, bool) {
	if a := loadAmbient(); a != nil {
		return a.handle, true
	}
	return nil, false
}

// RuntimeID returns the id of the runtime installed on the calling goroutine.
func RuntimeID() (uint64, bool) {
	if h, ok := Current(); ok {
		return h.id, true
	}
	return 0, false
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
