package transport

import (
	"sync"

	"github.com/regenmon/regentheme"
)

// Loop invokes a callback at a fixed interval while started. It has no
// paused state: it is either ticking on the transport or detached.
type Loop struct {
	mu        sync.Mutex
	scheduler Scheduler
	interval  regentheme.Ticks
	callback  Callback
	id        ID
	started   bool
	disposed  bool
}

// NewLoop binds the callback to the scheduler. Nothing ticks until Start.
func NewLoop(scheduler Scheduler, interval regentheme.Ticks, callback Callback) *Loop {
	return &Loop{scheduler: scheduler, interval: interval, callback: callback}
}

// Start begins ticking at transport tick at. A loop with a non-positive
// interval never ticks.
func (l *Loop) Start(at regentheme.Ticks) *Loop {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.disposed || l.interval <= 0 {
		return l
	}
	l.started = true
	l.id = l.scheduler.ScheduleRepeat(l.callback, l.interval, at)
	return l
}

// Dispose detaches the loop. Calling it again is a no-op.
func (l *Loop) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	if l.started {
		l.scheduler.Clear(l.id)
	}
	l.started = false
	l.disposed = true
}

// Disposed reports whether Dispose has been called.
func (l *Loop) Disposed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disposed
}
