package presence

import "sync"

// ActivityKind is the kind of ambient input observed.
type ActivityKind string

const (
	ActivityPointer ActivityKind = "pointer"
	ActivityKey     ActivityKind = "key"
)

// ActivityHub fans ambient input events out to registered listeners.
// Listeners run synchronously on the publisher's goroutine and must not
// block.
type ActivityHub struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(ActivityKind)
}

// NewActivityHub returns an empty hub.
func NewActivityHub() *ActivityHub {
	return &ActivityHub{listeners: make(map[int]func(ActivityKind))}
}

var defaultHub = NewActivityHub()

// DefaultHub is the process-wide hub.
func DefaultHub() *ActivityHub { return defaultHub }

// Register adds fn and returns a function that removes it.
func (h *ActivityHub) Register(fn func(ActivityKind)) (unregister func()) {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	h.next++
	id := h.next
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Publish notifies every listener of one activity event.
func (h *ActivityHub) Publish(kind ActivityKind) {
	h.mu.RLock()
	fns := make([]func(ActivityKind), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// Listeners returns the number of registered listeners.
func (h *ActivityHub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
