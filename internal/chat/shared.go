package chat

import (
	"sync"
)

// InitError describes why the readiness handshake failed.
type InitError struct {
	// Kind is one of "connectivity", "server-rejected", "malformed-response".
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a read-only view of the orchestrator state.
type Snapshot struct {
	SessionID    string     `json:"sessionId"`
	Messages     []Message  `json:"messages"`
	Loading      bool       `json:"loading"`
	Ready        bool       `json:"ready"`
	Initializing bool       `json:"initializing"`
	InitError    *InitError `json:"initError,omitempty"`

	// Version increases by one on every publish.
	Version uint64 `json:"version"`
}

// Newest returns the most recent message of the log.
func (s Snapshot) Newest() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Shared is the state object handed to both the orchestrator and the
// presence machine.
//
// The orchestrator is its only writer. Everyone else reads the latest
// snapshot or subscribes; subscriber callbacks run on one dispatcher
// goroutine, in publish order, and must not call Close.
type Shared struct {
	mu      sync.RWMutex
	snap    Snapshot
	nextSub int
	subs    map[int]*subscriber

	dispatch *dispatcher
}

type subscriber struct {
	fn func(Snapshot)
	// seen and delivered are only touched on the dispatcher goroutine.
	seen      bool
	delivered uint64
}

// NewShared returns an empty shared state.
func NewShared() *Shared {
	return &Shared{
		subs:     make(map[int]*subscriber),
		dispatch: newDispatcher(256),
	}
}

// Snapshot returns the latest published state.
func (s *Shared) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Publish stores next as the latest snapshot and fans it out to subscribers.
// Messages are copied, so the caller may keep mutating its own slice.
func (s *Shared) Publish(next Snapshot) {
	next.Messages = CloneMessages(next.Messages)
	if next.InitError != nil {
		e := *next.InitError
		next.InitError = &e
	}

	s.mu.Lock()
	next.Version = s.snap.Version + 1
	s.snap = next
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.deliver(id, next)
	}
}

// Subscribe registers fn and immediately queues the current snapshot for it.
// The returned function removes the subscription; deliveries still queued
// for it are skipped.
func (s *Shared) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = &subscriber{fn: fn}
	current := s.snap
	s.mu.Unlock()

	s.deliver(id, current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Shared) deliver(id int, snap Snapshot) {
	_ = s.dispatch.do(func() {
		s.mu.RLock()
		sub := s.subs[id]
		s.mu.RUnlock()
		if sub == nil {
			return
		}
		// A subscribe racing a publish can queue an older snapshot last.
		if sub.seen && snap.Version <= sub.delivered {
			return
		}
		sub.seen = true
		sub.delivered = snap.Version
		sub.fn(snap)
	})
}

// Subscribers returns the number of live subscriptions.
func (s *Shared) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close flushes pending deliveries and stops the dispatcher goroutine.
func (s *Shared) Close() {
	s.dispatch.close()
}
