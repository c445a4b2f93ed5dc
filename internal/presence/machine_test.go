package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/bhandras/qachat/internal/actor/actortest"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	t       *testing.T
	sched   *actortest.FakeScheduler
	shared  *chat.Shared
	hub     *ActivityHub
	machine *Machine
}

func newHarness(t *testing.T, draw float64) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		sched:  actortest.NewFakeScheduler(time.Unix(1000, 0)),
		shared: chat.NewShared(),
		hub:    NewActivityHub(),
	}
	h.machine = New(h.shared, h.hub, DefaultConfig(),
		WithScheduler(h.sched),
		WithRand(func() float64 { return draw }),
	)
	t.Cleanup(func() {
		h.machine.Close()
		h.shared.Close()
	})
	return h
}

func (h *harness) waitMood(want Mood) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.machine.Mood() == want },
		time.Second, 2*time.Millisecond, "mood %s, want %s", h.machine.Mood(), want)
}

// waitDue waits until the single mood timer is armed d in the future.
func (h *harness) waitDue(d time.Duration) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		due, ok := h.sched.NextDue()
		return ok && h.sched.Pending() == 1 && due == d
	}, time.Second, 2*time.Millisecond)
}

func (h *harness) publish(msgs []chat.Message, loading bool) {
	h.shared.Publish(chat.Snapshot{Messages: msgs, Loading: loading, Ready: true})
}

func TestMachineGreetsAfterDelayThenIdles(t *testing.T) {
	h := newHarness(t, 0)
	h.machine.Mount()

	require.Equal(t, MoodIdle, h.machine.Mood())
	h.waitDue(time.Second)
	h.sched.Advance(time.Second)
	h.waitMood(MoodInitialGreeting)

	h.waitDue(3 * time.Second)
	h.sched.Advance(3 * time.Second)
	h.waitMood(MoodIdle)

	// With a draw of 0 the engagement delay is the minimum and the draw fails.
	h.waitDue(10 * time.Second)
}

func TestMachineEngagementInterruptedByActivity(t *testing.T) {
	h := newHarness(t, 0.9)
	h.machine.Mount()

	h.waitDue(time.Second)
	h.sched.Advance(time.Second)
	h.waitDue(3 * time.Second)
	h.sched.Advance(3 * time.Second)
	h.waitMood(MoodIdle)

	// Delay = 10s + 0.9*10s.
	h.waitDue(19 * time.Second)
	h.sched.Advance(19 * time.Second)
	h.waitMood(MoodEngagementPrompt)
	h.waitDue(5 * time.Second)

	h.hub.Publish(ActivityPointer)
	h.waitMood(MoodIdle)
	h.waitDue(19 * time.Second)

	// The engagement timeout would have fired here; nothing changes.
	h.sched.Advance(5 * time.Second)
	require.Never(t, func() bool { return h.machine.Mood() != MoodIdle }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestMachineFarewellExactlyOnce(t *testing.T) {
	h := newHarness(t, 0)

	var mu sync.Mutex
	var farewells int
	remove := h.machine.OnChange(func(m Mood) {
		if m == MoodFarewell {
			mu.Lock()
			farewells++
			mu.Unlock()
		}
	})
	defer remove()

	h.machine.Mount()
	h.waitDue(time.Second)

	msgs := []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "до свидания"}}
	h.publish(msgs, true)
	h.waitMood(MoodFarewell)

	msgs = append(msgs,
		chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Всего доброго!"},
		chat.Message{ID: "u2", Role: chat.RoleUser, Content: "goodbye"},
	)
	h.publish(msgs, true)
	h.waitDue(2 * time.Second)
	h.sched.Advance(2 * time.Second)
	h.waitMood(MoodComposing)

	h.publish(append(msgs, chat.Message{ID: "a2", Role: chat.RoleAssistant}), false)
	h.waitMood(MoodIdle)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, farewells)
}

func TestMachineEmptyLogReturnsToIdle(t *testing.T) {
	h := newHarness(t, 0)
	h.machine.Mount()

	h.publish([]chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "Добрый вечер"}}, false)
	h.waitMood(MoodInitialGreeting)

	h.publish(nil, false)
	h.waitMood(MoodIdle)
	h.waitDue(time.Second)
}

func TestMachineUnmountReleasesEverything(t *testing.T) {
	h := newHarness(t, 0)
	h.machine.Mount()
	h.machine.Mount()
	require.Equal(t, 1, h.hub.Listeners())
	require.Equal(t, 1, h.shared.Subscribers())
	h.waitDue(time.Second)

	h.machine.Unmount()
	h.machine.Unmount()
	require.Equal(t, 0, h.hub.Listeners())
	require.Equal(t, 0, h.shared.Subscribers())
	require.Eventually(t, func() bool { return h.sched.Pending() == 0 }, time.Second, 2*time.Millisecond)

	h.hub.Publish(ActivityKey)
	h.sched.Advance(time.Minute)
	require.Equal(t, MoodIdle, h.machine.Mood())
}

func TestMachineActivityFloodKeepsFarewell(t *testing.T) {
	h := newHarness(t, 0)
	h.machine.Mount()
	h.waitDue(time.Second)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.hub.Publish(ActivityPointer)
			}
		}
	}()
	defer wg.Wait()
	defer close(stop)

	h.publish([]chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "до свидания"}}, false)
	h.waitMood(MoodFarewell)
	require.True(t, h.machine.actor.State().SaidFarewell)

	h.waitDue(2 * time.Second)
	h.sched.Advance(2 * time.Second)
	h.waitMood(MoodIdle)

	// Activity after a farewell never arms another timer.
	require.Eventually(t, func() bool { return h.sched.Pending() == 0 }, time.Second, 2*time.Millisecond)
	require.Never(t, func() bool { return h.sched.Pending() != 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestMachineActivityCoalesces(t *testing.T) {
	h := newHarness(t, 0)
	h.machine.Mount()
	h.waitDue(time.Second)

	// Far more events than the mailbox holds, published before the loop
	// gets to any of them.
	for i := 0; i < 5000; i++ {
		h.hub.Publish(ActivityKey)
	}
	h.publish([]chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "Добрый вечер"}}, false)
	h.waitMood(MoodInitialGreeting)
}
