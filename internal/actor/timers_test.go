package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

func TestTimersFireOnce(t *testing.T) {
	t.Parallel()

	sched := actortest.NewFakeScheduler(time.Unix(0, 0))
	timers := actor.NewTimers(sched)

	fired := 0
	timers.Start(context.Background(), "mood", time.Second, func() { fired++ })
	require.True(t, timers.Armed("mood"))

	sched.Advance(999 * time.Millisecond)
	require.Equal(t, 0, fired)

	sched.Advance(time.Millisecond)
	require.Equal(t, 1, fired)
	require.False(t, timers.Armed("mood"))

	sched.Advance(time.Hour)
	require.Equal(t, 1, fired)
}

func TestTimersRestartReplacesPrevious(t *testing.T) {
	t.Parallel()

	sched := actortest.NewFakeScheduler(time.Unix(0, 0))
	timers := actor.NewTimers(sched)

	var got []string
	timers.Start(context.Background(), "mood", time.Second, func() { got = append(got, "first") })
	timers.Start(context.Background(), "mood", 2*time.Second, func() { got = append(got, "second") })
	require.Equal(t, 1, sched.Pending())

	sched.Advance(5 * time.Second)
	require.Equal(t, []string{"second"}, got)
}

func TestTimersCancelAndStopAll(t *testing.T) {
	t.Parallel()

	sched := actortest.NewFakeScheduler(time.Unix(0, 0))
	timers := actor.NewTimers(sched)

	fired := 0
	timers.Start(context.Background(), "a", time.Second, func() { fired++ })
	timers.Start(context.Background(), "b", time.Second, func() { fired++ })
	timers.Cancel("a")
	require.Equal(t, 1, sched.Pending())

	timers.StopAll()
	require.Equal(t, 0, sched.Pending())

	sched.Advance(time.Minute)
	require.Equal(t, 0, fired)
}

func TestTimersSkipAfterContextDone(t *testing.T) {
	t.Parallel()

	sched := actortest.NewFakeScheduler(time.Unix(0, 0))
	timers := actor.NewTimers(sched)

	ctx, cancel := context.WithCancel(context.Background())
	fired := false
	timers.Start(ctx, "mood", time.Second, func() { fired = true })
	cancel()

	sched.Advance(time.Second)
	require.False(t, fired)
}

func TestFakeSchedulerOrdersByDueTime(t *testing.T) {
	t.Parallel()

	sched := actortest.NewFakeScheduler(time.Unix(100, 0))
	var order []int
	sched.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	sched.AfterFunc(time.Second, func() { order = append(order, 1) })
	stopped := sched.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	due, ok := sched.NextDue()
	require.True(t, ok)
	require.Equal(t, time.Second, due)

	sched.Advance(10 * time.Second)
	require.Equal(t, []int{1, 3}, order)
	require.True(t, sched.Now().Equal(time.Unix(110, 0)))
}
