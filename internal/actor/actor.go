// Package actor provides the event loop shared by the chat orchestrator and
// the presence state machine.
//
// One goroutine owns all mutable state of an actor. Inputs (commands from
// callers, events from the runtime) are reduced one at a time by a pure
// reducer that returns the next state plus a list of effects. A Runtime
// interprets those effects (network calls, timers, storage) outside the loop
// and reports completions back as new inputs.
package actor

import (
	"context"
	"sync"
)

// Input is an item delivered to an actor mailbox.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, start goroutines, read the clock, or draw
// random numbers. Anything non-deterministic travels in on the input.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
type Runtime interface {
	// HandleEffects executes effects. It must return quickly; blocking work
	// runs on its own goroutine and reports back through emit. emit waits
	// while the mailbox is full and drops the input once ctx is done, so it
	// must not be called from HandleEffects itself more than the mailbox
	// holds.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work (timers, in-flight calls). It may be
	// called more than once.
	Stop()
}

// Hooks observe an actor's execution. All hooks run on the actor goroutine.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after the next state has been stored.
	OnTransition func(prev S, next S, input Input)
	// OnEffects is called before effects are handed to the Runtime.
	OnEffects func(effects []Effect)
	// OnPanic receives a recovered panic. If nil the panic propagates.
	OnPanic func(recovered any)
}

// defaultMailboxSize is the mailbox buffer used when no option overrides it.
const defaultMailboxSize = 256

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu    sync.Mutex
	state S

	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches observability hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the mailbox buffer size. Non-positive values are
// ignored.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New creates an actor with an initial state, a reducer and a runtime. The
// runtime may be nil for reducers that never produce effects.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, defaultMailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. Calling it again has no effect.
func (a *Actor[S]) Start() {
	a.startOnce.Do(func() { go a.loop() })
}

// Stop cancels the loop and stops the runtime. Safe to call repeatedly, and
// safe to call on an actor that was never started.
func (a *Actor[S]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		if a.runtime != nil {
			a.runtime.Stop()
		}
		// An actor that never started has no loop to close done.
		a.startOnce.Do(func() { close(a.done) })
	})
}

// Done is closed when the loop has exited.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Context is canceled when the actor stops.
func (a *Actor[S]) Context() context.Context { return a.ctx }

// Enqueue delivers an input without blocking. It reports false when the
// actor is stopped or the mailbox is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	if a.ctx.Err() != nil {
		return false
	}
	select {
	case a.inbox <- input:
		return true
	default:
		return false
	}
}

// EnqueueWait delivers an input, waiting while the mailbox is full. It
// reports false when ctx is done or the actor is stopped.
func (a *Actor[S]) EnqueueWait(ctx context.Context, input Input) bool {
	if input == nil || a.ctx.Err() != nil {
		return false
	}
	select {
	case a.inbox <- input:
		return true
	case <-ctx.Done():
		return false
	case <-a.ctx.Done():
		return false
	}
}

// State returns a snapshot of the current state.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) { _ = a.EnqueueWait(a.ctx, in) }

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if in == nil {
		return
	}
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}
