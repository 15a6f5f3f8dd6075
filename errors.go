package asyncrt

import (
	"errors"
	"fmt"
	"net"
)

// Standard errors.
var (
	// ErrRuntimeClosed is returned when an operation requires a runtime that
	// has been closed, or garbage collected.
	ErrRuntimeClosed = errors.New("asyncrt: runtime has been closed")

	// ErrNoRuntime is returned (or panicked with, for [Spawn] and [Sleep])
	// when no runtime is installed on the calling goroutine.
	ErrNoRuntime = errors.New("asyncrt: must be called from within a runtime")

	// ErrInvalidWorkerCount is returned by [NewMultiThread] for workers < 1.
	ErrInvalidWorkerCount = errors.New("asyncrt: worker count must be at least 1")

	// ErrUnsupportedPlatform is returned by socket operations on platforms
	// without a readiness poller.
	ErrUnsupportedPlatform = errors.New("asyncrt: network reactor not supported on this platform")

	// ErrTaskDropped matches (via [errors.Is]) a [JoinError] for a task that
	// was discarded before it completed.
	ErrTaskDropped = errors.New("asyncrt: task has been dropped")

	// ErrTaskPanicked matches (via [errors.Is]) a [JoinError] for a task whose
	// poll panicked.
	ErrTaskPanicked = errors.New("asyncrt: task panicked")

	// ErrSocketClosed is returned by operations on a closed [UDPSocket].
	ErrSocketClosed = net.ErrClosed
)

// JoinError is reported by a [JoinHandle] whose task did not produce a value.
type JoinError struct {
	// Panic is the recovered value, if the task panicked.
	Panic any
	// Cause is the reason the task was dropped, e.g. [ErrRuntimeClosed].
	Cause error
	// Task identifies the task, within its scheduler.
	Task TaskID
	// Panicked is true if the task's poll panicked.
	Panicked bool
}

// Error implements the error interface.
func (e *JoinError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("asyncrt: task %d panicked: %v", e.Task, e.Panic)
	}
	if e.Cause != nil {
		return fmt.Sprintf("asyncrt: task %d has been dropped: %v", e.Task, e.Cause)
	}
	return fmt.Sprintf("asyncrt: task %d has been dropped", e.Task)
}

// Is allows matching against [ErrTaskDropped] and [ErrTaskPanicked].
func (e *JoinError) Is(target error) bool {
	switch target {
	case ErrTaskPanicked:
		return e.Panicked
	case ErrTaskDropped:
		return !e.Panicked
	}
	return false
}

// Unwrap returns the cause, or the panic value if it is an error.
func (e *JoinError) Unwrap() error {
	if e.Panicked {
		if err, ok := e.Panic.(error); ok {
			return err
		}
		return nil
	}
	return e.Cause
}
