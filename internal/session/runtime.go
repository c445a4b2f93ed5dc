package session

import (
	"context"
	"fmt"
	"sync"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/bhandras/qachat/pkg/logger"
)

// Gateway is the subset of the service client the orchestrator needs.
type Gateway interface {
	Initialize(ctx context.Context) (*gateway.InitializeResponse, error)
	Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
	History(ctx context.Context, sessionID string) (*gateway.HistoryResponse, error)
}

// Runtime executes orchestrator effects. Network calls run on their own
// goroutines and report back as events.
type Runtime struct {
	gw    Gateway
	kv    storage.KV
	clock framework.Clock
	newID func() string

	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ framework.Runtime = (*Runtime)(nil)

// NewRuntime returns a Runtime. newID mints assistant message identifiers.
func NewRuntime(gw Gateway, kv storage.KV, clock framework.Clock, newID func() string) *Runtime {
	if clock == nil {
		clock = framework.RealClock{}
	}
	return &Runtime{gw: gw, kv: kv, clock: clock, newID: newID}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []framework.Effect, emit func(framework.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effCompleteReply:
			completeReply(e.Reply, e.Err)
		case effPersistSession:
			r.persistSession(e)
		case effInitialize:
			r.goAsync(ctx, emit, func() framework.Input { return r.initialize(ctx, e) })
		case effChat:
			r.goAsync(ctx, emit, func() framework.Input { return r.chat(ctx, e) })
		case effFetchHistory:
			r.goAsync(ctx, emit, func() framework.Input { return r.fetchHistory(ctx, e) })
		default:
			logger.Warnf("session: unhandled effect %T", eff)
		}
	}
}

// Stop waits for in-flight calls. Their context is the actor's, which is
// already canceled when Stop runs.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { r.wg.Wait() })
}

func (r *Runtime) goAsync(ctx context.Context, emit func(framework.Input), work func() framework.Input) {
	if ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		in := work()
		if in == nil || ctx.Err() != nil {
			return
		}
		emit(in)
	}()
}

func (r *Runtime) initialize(ctx context.Context, eff effInitialize) framework.Input {
	resp, err := r.gw.Initialize(ctx)
	if err != nil {
		logger.Warnf("session: initialize failed: %v", err)
		return evInitResult{Gen: eff.Gen, Err: err}
	}
	if resp != nil && resp.Message != "" {
		logger.Infof("session: service ready: %s", resp.Message)
	} else {
		logger.Infof("session: service ready")
	}
	return evInitResult{Gen: eff.Gen}
}

func (r *Runtime) chat(ctx context.Context, eff effChat) framework.Input {
	resp, err := r.gw.Chat(ctx, gateway.ChatRequest{Question: eff.Question, SessionID: eff.SessionID})
	if err != nil {
		logger.Warnf("session: chat request for %s failed: %v", eff.SessionID, err)
	}
	return evChatResult{
		Epoch:       eff.Epoch,
		UserID:      eff.UserID,
		Resp:        resp,
		Err:         err,
		AssistantID: r.newID(),
		Now:         r.clock.Now(),
	}
}

func (r *Runtime) fetchHistory(ctx context.Context, eff effFetchHistory) framework.Input {
	ev := evHistoryResult{
		Epoch:     eff.Epoch,
		SessionID: eff.SessionID,
		Reply:     eff.Reply,
		Now:       r.clock.Now(),
	}
	resp, err := r.gw.History(ctx, eff.SessionID)
	if err != nil {
		logger.Warnf("session: failed to load history for %s: %v", eff.SessionID, err)
		ev.Err = err
		return ev
	}
	ev.Turns = resp.Turns()
	logger.Debugf("session: loaded %d turns for %s", len(ev.Turns), eff.SessionID)
	return ev
}

func (r *Runtime) persistSession(eff effPersistSession) {
	var err error
	if r.kv != nil {
		if setErr := r.kv.Set(storage.CurrentSessionKey, eff.SessionID); setErr != nil {
			err = fmt.Errorf("persist session id: %w", setErr)
			logger.Errorf("session: %v", err)
		}
	}
	completeReply(eff.Reply, err)
}

// completeReply never blocks. Reply channels are created with capacity 1.
func completeReply(reply chan error, err error) {
	if reply == nil {
		return
	}
	select {
	case reply <- err:
	default:
	}
}
