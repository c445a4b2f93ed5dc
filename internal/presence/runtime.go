package presence

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/pkg/logger"
)

const moodTimer = "mood"

// Runtime arms the mood timer and draws the random numbers the reducer may
// not.
type Runtime struct {
	timers *framework.Timers

	mu     sync.Mutex
	randFn func() float64
}

var _ framework.Runtime = (*Runtime)(nil)

// NewRuntime returns a Runtime on sched. randFn must return values in
// [0,1); nil uses math/rand/v2.
func NewRuntime(sched framework.Scheduler, randFn func() float64) *Runtime {
	if randFn == nil {
		randFn = defaultRand
	}
	return &Runtime{timers: framework.NewTimers(sched), randFn: randFn}
}

func defaultRand() float64 { return rand.Float64() }

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []framework.Effect, emit func(framework.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effStartTimer:
			delay := e.After
			if e.Jitter > 0 {
				delay += time.Duration(r.draw() * float64(e.Jitter))
			}
			logger.Tracef("presence: arm %s in %v (gen %d)", e.Purpose, delay, e.Gen)
			r.timers.Start(ctx, moodTimer, delay, func() {
				ev := evTimerFired{Gen: e.Gen}
				if e.Purpose == purposeEngagementDraw {
					ev.Draw = r.draw()
				}
				emit(ev)
			})
		case effCancelTimer:
			r.timers.Cancel(moodTimer)
		}
	}
}

// Stop cancels the mood timer.
func (r *Runtime) Stop() {
	r.timers.StopAll()
}

func (r *Runtime) draw() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.randFn()
	if v < 0 || v >= 1 {
		return 0
	}
	return v
}
