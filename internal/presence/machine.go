// Package presence derives the mood of the decorative assistant from the
// conversation, idle time and ambient input activity.
//
// The Machine observes a chat.Shared (it never writes to it) and an
// ActivityHub. Its state lives in an actor; the only timer is the mood timer,
// which every transition replaces or cancels.
package presence

import (
	"sync"
	"sync/atomic"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/pkg/logger"
)

// Machine is the public handle of the presence actor.
type Machine struct {
	actor  *framework.Actor[State]
	shared *chat.Shared
	hub    *ActivityHub

	// activityPending is set while an evActivity waits in the mailbox.
	// Further activity until it is dequeued carries no new information.
	activityPending atomic.Bool

	mu          sync.Mutex
	mounted     bool
	unsubscribe func()
	unregister  func()

	listenersMu sync.RWMutex
	nextID      int
	listeners   map[int]func(Mood)
}

type options struct {
	sched framework.Scheduler
	rand  func() float64
}

// Option configures a Machine.
type Option func(*options)

// WithScheduler sets the clock the mood timer runs on.
func WithScheduler(s framework.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithRand sets the source of the engagement delay and draw. fn must return
// values in [0,1).
func WithRand(fn func() float64) Option {
	return func(o *options) { o.rand = fn }
}

// New returns a started, unmounted Machine in idle. A nil hub uses
// DefaultHub.
func New(shared *chat.Shared, hub *ActivityHub, cfg Config, opts ...Option) *Machine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if hub == nil {
		hub = DefaultHub()
	}

	m := &Machine{
		shared:    shared,
		hub:       hub,
		listeners: make(map[int]func(Mood)),
	}
	m.actor = framework.New(
		State{Mood: MoodIdle},
		Reducer(cfg),
		NewRuntime(o.sched, o.rand),
		framework.WithHooks(framework.Hooks[State]{
			OnInput: func(in framework.Input) {
				if _, ok := in.(evActivity); ok {
					m.activityPending.Store(false)
				}
			},
			OnTransition: func(prev, next State, _ framework.Input) {
				if prev.Mood != next.Mood && next.Mood != "" {
					logger.Debugf("presence: %s -> %s", prev.Mood, next.Mood)
					m.notify(next.Mood)
				}
			},
			OnPanic: func(r any) {
				logger.Errorf("presence: actor panic: %v", r)
			},
		}),
	)
	m.actor.Start()
	return m
}

// Mount starts reacting: the shared chat state and activity events are
// observed and the mood timer runs. Mounting twice has no effect.
func (m *Machine) Mount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mounted {
		return
	}
	m.mounted = true

	ctx := m.actor.Context()
	m.actor.EnqueueWait(ctx, cmdMount{})
	if m.shared != nil {
		// Snapshots wait for mailbox room: dropping one could hide the
		// message the farewell or loading decisions depend on.
		m.unsubscribe = m.shared.Subscribe(func(s chat.Snapshot) {
			newest, ok := s.Newest()
			m.actor.EnqueueWait(ctx, evSnapshot{
				LogLen:    len(s.Messages),
				Loading:   s.Loading,
				Newest:    newest,
				HasNewest: ok,
			})
		})
	}
	m.unregister = m.hub.Register(func(kind ActivityKind) {
		if m.activityPending.CompareAndSwap(false, true) && !m.actor.Enqueue(evActivity{Kind: kind}) {
			m.activityPending.Store(false)
		}
	})
}

// Unmount releases the subscription, the activity listener and the mood
// timer. The mood is kept.
func (m *Machine) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return
	}
	m.mounted = false

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.unregister != nil {
		m.unregister()
		m.unregister = nil
	}
	m.actor.EnqueueWait(m.actor.Context(), cmdUnmount{})
}

// Close unmounts and stops the actor.
func (m *Machine) Close() {
	m.Unmount()
	m.actor.Stop()
	<-m.actor.Done()
}

// Mood returns the current mood.
func (m *Machine) Mood() Mood {
	return m.actor.State().Mood
}

// OnChange registers fn to be called with each new mood. fn runs on the
// actor goroutine and must not block.
func (m *Machine) OnChange(fn func(Mood)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	m.listenersMu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			delete(m.listeners, id)
			m.listenersMu.Unlock()
		})
	}
}

func (m *Machine) notify(mood Mood) {
	m.listenersMu.RLock()
	fns := make([]func(Mood), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(mood)
	}
}
