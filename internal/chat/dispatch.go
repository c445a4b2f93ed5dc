package chat

import (
	"errors"
	"sync"
)

// errDispatcherClosed is returned when work is submitted after close.
var errDispatcherClosed = errors.New("dispatcher closed")

// dispatcher serializes subscriber callbacks onto a single goroutine so that
// publishers never block on slow subscribers and every subscriber observes
// snapshots in publish order.
type dispatcher struct {
	mu     sync.Mutex
	closed bool
	q      chan func()
	done   chan struct{}
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q:    make(chan func(), queueSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for fn := range d.q {
			fn()
		}
	}()
	return d
}

// do queues fn. It blocks only while the queue is full.
func (d *dispatcher) do(fn func()) error {
	if fn == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDispatcherClosed
	}
	d.q <- fn
	return nil
}

// close drains queued work and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.q)
	d.mu.Unlock()
	<-d.done
}
