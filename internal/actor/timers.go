package actor

import (
	"context"
	"sync"
	"time"
)

// Timers tracks named single-shot timers for a Runtime.
//
// Starting a timer under a name that is already armed stops the previous one
// first, so at most one callback per name is ever pending.
type Timers struct {
	sched Scheduler

	mu     sync.Mutex
	timers map[string]Timer
}

// NewTimers returns a timer set backed by sched. A nil sched uses RealClock.
func NewTimers(sched Scheduler) *Timers {
	if sched == nil {
		sched = RealClock{}
	}
	return &Timers{sched: sched, timers: make(map[string]Timer)}
}

// Now returns the current time of the underlying scheduler.
func (t *Timers) Now() time.Time { return t.sched.Now() }

// Start arms the named timer. fire runs on the scheduler's goroutine unless
// ctx is done by then.
func (t *Timers) Start(ctx context.Context, name string, after time.Duration, fire func()) {
	if name == "" || fire == nil {
		return
	}
	if after < 0 {
		after = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev := t.timers[name]; prev != nil {
		prev.Stop()
	}
	var self Timer
	self = t.sched.AfterFunc(after, func() {
		t.mu.Lock()
		current := t.timers[name] == self
		if current {
			delete(t.timers, name)
		}
		t.mu.Unlock()
		if !current || ctx.Err() != nil {
			return
		}
		fire()
	})
	t.timers[name] = self
}

// Cancel stops the named timer if it is armed.
func (t *Timers) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm := t.timers[name]; tm != nil {
		tm.Stop()
	}
	delete(t.timers, name)
}

// Armed reports whether the named timer is pending.
func (t *Timers) Armed(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[name]
	return ok
}

// StopAll cancels every pending timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, tm := range t.timers {
		tm.Stop()
		delete(t.timers, name)
	}
}
