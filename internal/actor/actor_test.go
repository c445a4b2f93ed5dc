package actor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/actor/actortest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type addEvent struct {
	actor.InputBase
	n int
}

type addEffect struct {
	actor.EffectBase
	n int
}

func addReducer(state int, input actor.Input) (int, []actor.Effect) {
	ev, ok := input.(addEvent)
	if !ok {
		return state, nil
	}
	return state + ev.n, []actor.Effect{addEffect{n: ev.n}}
}

func TestActorProcessesInputsSequentially(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, addReducer, rt)
	a.Start()
	defer a.Stop()

	for i := 1; i <= 5; i++ {
		require.True(t, a.Enqueue(addEvent{n: i}), "enqueue %d", i)
	}

	require.Eventually(t, func() bool { return a.State() == 15 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, rt.Effects(), 5)
}

func TestActorRuntimeEmitsFollowUps(t *testing.T) {
	t.Parallel()

	// Every effect with n > 1 emits a follow-up of n-1, so 3 settles at 3+2+1.
	rt := &actortest.FakeRuntime{
		EmitFn: func(_ context.Context, eff actor.Effect, emit func(actor.Input)) {
			if e, ok := eff.(addEffect); ok && e.n > 1 {
				emit(addEvent{n: e.n - 1})
			}
		},
	}
	a := actor.New[int](0, addReducer, rt)
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(addEvent{n: 3}))
	require.Eventually(t, func() bool { return a.State() == 6 }, 2*time.Second, 5*time.Millisecond)
}

func TestActorHooksObserveTransitions(t *testing.T) {
	t.Parallel()

	var transitions atomic.Int32
	a := actor.New[int](0, addReducer, nil, actor.WithHooks(actor.Hooks[int]{
		OnTransition: func(prev, next int, _ actor.Input) {
			if next != prev {
				transitions.Add(1)
			}
		},
	}))
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(addEvent{n: 1}))
	require.True(t, a.Enqueue(addEvent{n: 0}))
	require.True(t, a.Enqueue(addEvent{n: 2}))
	require.Eventually(t, func() bool { return a.State() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), transitions.Load())
}

func TestActorStopRejectsInputs(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, addReducer, rt)
	a.Start()
	a.Stop()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		require.Fail(t, "loop did not exit")
	}
	require.False(t, a.Enqueue(addEvent{n: 1}))
	require.Equal(t, 1, rt.Stops())
}

func TestActorStopWithoutStart(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, addReducer, nil)
	a.Stop()

	select {
	case <-a.Done():
	default:
		require.Fail(t, "done should be closed for an actor that never started")
	}
}

func TestActorMailboxFullDrops(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, addReducer, nil, actor.WithMailboxSize[int](1))
	defer a.Stop()

	require.True(t, a.Enqueue(addEvent{n: 1}))
	require.False(t, a.Enqueue(addEvent{n: 1}))
}

func TestActorEnqueueWaitBlocksUntilRoom(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, addReducer, nil, actor.WithMailboxSize[int](1))
	require.True(t, a.Enqueue(addEvent{n: 1}))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, a.EnqueueWait(canceled, addEvent{n: 100}))

	delivered := make(chan bool, 1)
	go func() { delivered <- a.EnqueueWait(context.Background(), addEvent{n: 2}) }()

	select {
	case <-delivered:
		require.Fail(t, "mailbox is full until the loop runs")
	case <-time.After(20 * time.Millisecond):
	}

	a.Start()
	require.True(t, <-delivered)
	require.Eventually(t, func() bool { return a.State() == 3 }, 2*time.Second, 5*time.Millisecond)

	a.Stop()
	<-a.Done()
	require.False(t, a.EnqueueWait(context.Background(), addEvent{n: 1}))
}

func TestActorRuntimeFollowUpsSurviveFullMailbox(t *testing.T) {
	t.Parallel()

	// Each effect reports back from its own goroutine while the mailbox of
	// one slot is kept busy, so follow-ups must wait instead of dropping.
	const n = 50
	var followUps atomic.Int32
	done := make(chan struct{}, n)
	rt := &actortest.FakeRuntime{
		EmitFn: func(_ context.Context, eff actor.Effect, emit func(actor.Input)) {
			e, ok := eff.(addEffect)
			if !ok || e.n != 1 {
				return
			}
			go func() {
				emit(addEvent{n: 1000})
				done <- struct{}{}
			}()
		},
	}
	a := actor.New[int](0, addReducer, rt, actor.WithMailboxSize[int](1),
		actor.WithHooks(actor.Hooks[int]{
			OnInput: func(in actor.Input) {
				if ev, ok := in.(addEvent); ok && ev.n == 1000 {
					followUps.Add(1)
				}
			},
		}))
	a.Start()
	defer a.Stop()

	for i := 0; i < n; i++ {
		require.True(t, a.EnqueueWait(context.Background(), addEvent{n: 1}))
	}
	for i := 0; i < n; i++ {
		<-done
	}
	require.Eventually(t, func() bool { return a.State() == n*1001 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(n), followUps.Load())
}

func TestReplayFoldsInputs(t *testing.T) {
	t.Parallel()

	state, effects := actor.Replay(0, addReducer, addEvent{n: 2}, addEvent{n: 5})
	require.Equal(t, 7, state)
	require.Len(t, effects, 2)

	next, effects := actor.Step(state, addEvent{n: 1}, addReducer)
	require.Equal(t, 8, next)
	require.Equal(t, []actor.Effect{addEffect{n: 1}}, effects)
}
