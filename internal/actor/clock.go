package actor

import "time"

// Clock provides a testable time source.
//
// Reducers never call a Clock. Runtimes and API wrappers read it and inject
// timestamps through inputs.
type Clock interface {
	Now() time.Time
}

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Scheduler is a Clock that can also arm single-shot callbacks.
type Scheduler interface {
	Clock
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the production Scheduler backed by the time package.
type RealClock struct{}

var _ Scheduler = RealClock{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Scheduler.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
