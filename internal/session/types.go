package session

import (
	"time"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/gateway"
)

// State is the loop-owned state of the orchestrator.
type State struct {
	SessionID string

	// Epoch increments whenever the session identity changes. Runtime results
	// carry the epoch they were issued under so late ones can be ignored.
	Epoch uint64

	Messages []chat.Message

	// Loading is true while a chat request is outstanding.
	Loading bool
	// PendingUserID is the user message the outstanding request answers.
	PendingUserID string

	Ready        bool
	Initializing bool
	InitErr      *chat.InitError

	// InitGen increments for each handshake attempt.
	InitGen int64
	// PendingInitReplies are completed when the current attempt finishes.
	PendingInitReplies []chan error
}

// Snapshot converts the loop state into the published view.
func (s State) Snapshot() chat.Snapshot {
	return chat.Snapshot{
		SessionID:    s.SessionID,
		Messages:     s.Messages,
		Loading:      s.Loading,
		Ready:        s.Ready,
		Initializing: s.Initializing,
		InitError:    s.InitErr,
	}
}

// Commands

type cmdInitialize struct {
	framework.InputBase
	Reply chan error
}

// cmdSend carries the user turn with its identity and timestamp already
// minted by the caller.
type cmdSend struct {
	framework.InputBase
	Text  string
	ID    string
	Now   time.Time
	Reply chan error
}

type cmdLoadHistory struct {
	framework.InputBase
	SessionID string
	Reply     chan error
}

type cmdClearSession struct {
	framework.InputBase
	SessionID string
	Reply     chan error
}

// Events

type evInitResult struct {
	framework.InputBase
	Gen int64
	Err error
}

type evChatResult struct {
	framework.InputBase
	Epoch  uint64
	UserID string

	Resp *gateway.ChatResponse
	Err  error

	// AssistantID and Now identify the assistant turn built from the result.
	AssistantID string
	Now         time.Time
}

type evHistoryResult struct {
	framework.InputBase
	Epoch     uint64
	SessionID string
	Turns     []gateway.HistoryTurn
	Err       error
	Now       time.Time
	Reply     chan error
}

// Effects

type effInitialize struct {
	framework.EffectBase
	Gen int64
}

type effChat struct {
	framework.EffectBase
	Epoch     uint64
	UserID    string
	SessionID string
	Question  string
}

type effFetchHistory struct {
	framework.EffectBase
	Epoch     uint64
	SessionID string
	Reply     chan error
}

type effPersistSession struct {
	framework.EffectBase
	SessionID string
	Reply     chan error
}

type effCompleteReply struct {
	framework.EffectBase
	Reply chan error
	Err   error
}
