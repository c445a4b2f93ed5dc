// Package session implements the chat orchestrator: session identity, the
// ordered message log, the lifecycle of the single outstanding request, and
// service readiness.
//
// The orchestrator is an actor. Callers talk to it through Orchestrator and
// observe it through the chat.Shared it publishes to.
package session

import (
	"context"
	"errors"
	"fmt"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/bhandras/qachat/pkg/logger"
	"github.com/google/uuid"
)

var errMailboxFull = errors.New("orchestrator busy")

// Orchestrator is the public handle of the session actor.
type Orchestrator struct {
	actor  *framework.Actor[State]
	shared *chat.Shared
	clock  framework.Clock
	newID  func() string
}

type options struct {
	clock framework.Clock
	newID func() string
}

// Option configures an Orchestrator.
type Option func(*options)

// WithClock sets the time source for message timestamps and session ids.
func WithClock(c framework.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator sets the message identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New recovers the current session from kv (minting and persisting one when
// none is stored), publishes the initial state to shared, and starts the
// actor. Initialization is not performed; see Start and Initialize.
func New(gw Gateway, kv storage.KV, shared *chat.Shared, opts ...Option) (*Orchestrator, error) {
	if gw == nil || kv == nil || shared == nil {
		return nil, fmt.Errorf("session: gateway, store and shared state are required")
	}
	o := options{clock: framework.RealClock{}, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	id, created, err := storage.LoadOrCreateSessionID(kv, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("session: recover session id: %w", err)
	}
	switch {
	case created:
		logger.Infof("session: started new session %s", id)
	case !storage.ValidSessionID(id):
		logger.Warnf("session: resumed session %s, which this client did not mint", id)
	default:
		logger.Infof("session: resumed session %s", id)
	}

	initial := State{SessionID: id}
	shared.Publish(initial.Snapshot())

	runtime := NewRuntime(gw, kv, o.clock, o.newID)
	a := framework.New(initial, Reduce, runtime, framework.WithHooks(framework.Hooks[State]{
		OnInput: func(in framework.Input) {
			logger.Tracef("session: input %T", in)
		},
		OnTransition: func(prev, next State, _ framework.Input) {
			if viewChanged(prev, next) {
				shared.Publish(next.Snapshot())
			}
		},
		OnPanic: func(r any) {
			logger.Errorf("session: actor panic: %v", r)
		},
	}))
	a.Start()

	return &Orchestrator{
		actor:  a,
		shared: shared,
		clock:  o.clock,
		newID:  o.newID,
	}, nil
}

// Start runs the boot sequence: the readiness handshake followed by a
// history load for the current session. A history failure is logged only;
// the handshake error is returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	initErr := o.Initialize(ctx)
	if err := o.LoadHistory(ctx, o.SessionID()); err != nil && !errors.Is(err, ErrClosed) {
		logger.Debugf("session: initial history load: %v", err)
	}
	return initErr
}

// Initialize performs the readiness handshake. Concurrent calls share one
// attempt. The classified failure is also recorded in the snapshot.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	return o.call(ctx, func(reply chan error) framework.Input {
		return cmdInitialize{Reply: reply}
	})
}

// LoadHistory replaces the log with the stored history of sessionID (empty
// means current). ErrSessionChanged is returned when sessionID is not, or is
// no longer, the current session.
func (o *Orchestrator) LoadHistory(ctx context.Context, sessionID string) error {
	return o.call(ctx, func(reply chan error) framework.Input {
		return cmdLoadHistory{SessionID: sessionID, Reply: reply}
	})
}

// Send submits a user message. On success the user turn is already in the
// snapshot and loading is set; the answer arrives asynchronously.
func (o *Orchestrator) Send(text string) error {
	id := o.newID()
	now := o.clock.Now()
	return o.call(context.Background(), func(reply chan error) framework.Input {
		return cmdSend{Text: text, ID: id, Now: now, Reply: reply}
	})
}

// SendMessage is Send reporting only whether the message was accepted.
func (o *Orchestrator) SendMessage(text string) bool {
	err := o.Send(text)
	if err != nil && !errors.Is(err, ErrBlankMessage) {
		logger.Debugf("session: message not sent: %v", err)
	}
	return err == nil
}

// ClearSession discards the log and switches to a freshly minted, persisted
// session identifier. Readiness is kept.
func (o *Orchestrator) ClearSession() (string, error) {
	id, err := storage.NewSessionID(o.clock.Now())
	if err != nil {
		return "", err
	}
	err = o.call(context.Background(), func(reply chan error) framework.Input {
		return cmdClearSession{SessionID: id, Reply: reply}
	})
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, errMailboxFull):
		return "", err
	case err != nil:
		// The switch happened; only persisting failed.
		return id, err
	}
	logger.Infof("session: switched to %s", id)
	return id, nil
}

// SessionID returns the current session identifier.
func (o *Orchestrator) SessionID() string {
	return o.actor.State().SessionID
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() chat.Snapshot {
	return o.shared.Snapshot()
}

// Shared returns the state object the orchestrator publishes to.
func (o *Orchestrator) Shared() *chat.Shared {
	return o.shared
}

// Close stops the actor and waits for in-flight calls to unwind. The shared
// state is left open for its owner to close.
func (o *Orchestrator) Close() {
	o.actor.Stop()
	<-o.actor.Done()
}

func (o *Orchestrator) call(ctx context.Context, build func(reply chan error) framework.Input) error {
	reply := make(chan error, 1)
	if !o.actor.Enqueue(build(reply)) {
		if o.actor.Context().Err() != nil {
			return ErrClosed
		}
		return errMailboxFull
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.actor.Done():
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// viewChanged reports whether next differs from prev in anything the
// snapshot exposes.
func viewChanged(prev, next State) bool {
	if prev.SessionID != next.SessionID ||
		prev.Loading != next.Loading ||
		prev.Ready != next.Ready ||
		prev.Initializing != next.Initializing ||
		prev.InitErr != next.InitErr {
		return true
	}
	if len(prev.Messages) != len(next.Messages) {
		return true
	}
	return len(next.Messages) > 0 && &prev.Messages[0] != &next.Messages[0]
}
