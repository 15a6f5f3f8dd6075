package asyncrt

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// logCategory identifies a class of repeated warning, for rate limiting.
type logCategory string

const (
	logCategoryReactorWait logCategory = "reactor_wait"
	logCategoryReactorWake logCategory = "reactor_wake"
	logCategoryTaskPanic   logCategory = "task_panic"
	logCategoryLeaked      logCategory = "leaked_runtime"
)

// runtimeLogger wraps the configured logger, tagging events with the runtime
// identity, and throttling noisy categories.
type runtimeLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	name    string
	id      uint64
}

func newRuntimeLogger(cfg *runtimeOptions, id uint64) *runtimeLogger {
	x := &runtimeLogger{
		logger: cfg.logger,
		name:   cfg.name,
		id:     id,
	}
	if len(cfg.warnRates) != 0 {
		x.limiter = catrate.NewLimiter(cfg.warnRates)
	}
	return x
}

func (x *runtimeLogger) enabled() bool {
	return x != nil && x.logger != nil
}

// tag adds the common fields, tolerating a nil (disabled) builder.
func (x *runtimeLogger) tag(b *logiface.Builder[logiface.Event]) *logiface.Builder[logiface.Event] {
	b = b.Uint64("runtime", x.id)
	if x.name != "" {
		b = b.Str("name", x.name)
	}
	return b
}

func (x *runtimeLogger) debug() *logiface.Builder[logiface.Event] {
	if !x.enabled() {
		return nil
	}
	return x.tag(x.logger.Debug())
}

func (x *runtimeLogger) info() *logiface.Builder[logiface.Event] {
	if !x.enabled() {
		return nil
	}
	return x.tag(x.logger.Info())
}

// warning returns nil if the category has exceeded its rate.
func (x *runtimeLogger) warning(category logCategory) *logiface.Builder[logiface.Event] {
	if !x.enabled() || !x.allow(category) {
		return nil
	}
	return x.tag(x.logger.Warning()).Str("category", string(category))
}

// err returns nil if the category has exceeded its rate.
func (x *runtimeLogger) err(category logCategory) *logiface.Builder[logiface.Event] {
	if !x.enabled() || !x.allow(category) {
		return nil
	}
	return x.tag(x.logger.Err()).Str("category", string(category))
}

func (x *runtimeLogger) allow(category logCategory) bool {
	if x.limiter == nil {
		return true
	}
	_, ok := x.limiter.Allow(category)
	return ok
}

// taskPanicked reports a recovered task panic. The panic also reaches the
// task's JoinHandle, as a JoinError.
func (x *runtimeLogger) taskPanicked(task TaskID, value any, elapsed time.Duration) {
	b := x.err(logCategoryTaskPanic)
	if err, ok := value.(error); ok {
		b = b.Err(err)
	} else {
		b = b.Any("panic", value)
	}
	b.Uint64("task", uint64(task)).
		Dur("poll", elapsed).
		Log("task panicked")
}
