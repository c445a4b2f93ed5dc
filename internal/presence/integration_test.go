package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/bhandras/qachat/internal/actor/actortest"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/internal/presence"
	"github.com/bhandras/qachat/internal/session"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/stretchr/testify/require"
)

type echoGateway struct{}

func (echoGateway) Initialize(context.Context) (*gateway.InitializeResponse, error) {
	ok := true
	return &gateway.InitializeResponse{Success: &ok}, nil
}

func (echoGateway) Chat(_ context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	return &gateway.ChatResponse{Result: "Всего доброго! (" + req.Question + ")", Confidence: 0.9}, nil
}

func (echoGateway) History(_ context.Context, id string) (*gateway.HistoryResponse, error) {
	return &gateway.HistoryResponse{SessionID: id}, nil
}

// TestFarewellThroughOrchestrator drives the presence from a real
// orchestrator sharing one chat state.
func TestFarewellThroughOrchestrator(t *testing.T) {
	shared := chat.NewShared()
	defer shared.Close()

	orch, err := session.New(echoGateway{}, storage.NewMemoryKV(), shared)
	require.NoError(t, err)
	defer orch.Close()

	sched := actortest.NewFakeScheduler(time.Unix(0, 0))
	m := presence.New(shared, presence.NewActivityHub(), presence.DefaultConfig(), presence.WithScheduler(sched))
	defer m.Close()
	m.Mount()

	require.NoError(t, orch.Initialize(context.Background()))
	require.True(t, orch.SendMessage("до свидания"))

	require.Eventually(t, func() bool {
		s := orch.Snapshot()
		return !s.Loading && len(s.Messages) == 2
	}, time.Second, 5*time.Millisecond)
	snap := orch.Snapshot()
	require.Equal(t, chat.RoleUser, snap.Messages[0].Role)
	require.Equal(t, chat.RoleAssistant, snap.Messages[1].Role)
	require.False(t, snap.Messages[1].Error)

	require.Eventually(t, func() bool { return m.Mood() == presence.MoodFarewell }, time.Second, 5*time.Millisecond)

	// Clearing the conversation brings the presence back to idle.
	_, err = orch.ClearSession()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Mood() == presence.MoodIdle }, time.Second, 5*time.Millisecond)
}
