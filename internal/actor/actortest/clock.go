package actortest

import (
	"sort"
	"sync"
	"time"

	"github.com/bhandras/qachat/internal/actor"
)

// FakeScheduler is a deterministic Scheduler for tests.
//
// Time only moves when Advance is called. Due callbacks run synchronously on
// the caller's goroutine, in due-time order.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

var _ actor.Scheduler = (*FakeScheduler)(nil)

// NewFakeScheduler returns a FakeScheduler starting at the given time.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start}
}

// Now implements actor.Clock.
func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc implements actor.Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) actor.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.pending = append(s.pending, t)
	return t
}

// Pending returns the number of armed timers.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// NextDue returns how far in the future the earliest armed timer is due.
// ok is false when nothing is armed.
func (s *FakeScheduler) NextDue() (d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, false
	}
	s.sortLocked()
	return s.pending[0].at.Sub(s.now), true
}

// Advance moves time forward by d, firing every timer that falls due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		s.sortLocked()
		if len(s.pending) == 0 || s.pending[0].at.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		t := s.pending[0]
		s.pending = s.pending[1:]
		t.fired = true
		if t.at.After(s.now) {
			s.now = t.at
		}
		s.mu.Unlock()

		t.f()
	}
}

func (s *FakeScheduler) sortLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].at.Equal(s.pending[j].at) {
			return s.pending[i].seq < s.pending[j].seq
		}
		return s.pending[i].at.Before(s.pending[j].at)
	})
}

type fakeTimer struct {
	s       *FakeScheduler
	at      time.Time
	seq     int
	f       func()
	fired   bool
	stopped bool
}

// Stop implements actor.Timer.
func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, p := range t.s.pending {
		if p == t {
			t.s.pending = append(t.s.pending[:i], t.s.pending[i+1:]...)
			break
		}
	}
	return true
}

// FakeClock is a deterministic Clock for tests that never arm timers.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ actor.Clock = (*FakeClock)(nil)

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements actor.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
