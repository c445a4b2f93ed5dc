package presence

import (
	"time"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
)

// Reducer returns the presence reducer for cfg.
func Reducer(cfg Config) framework.ReducerFunc[State] {
	cfg = cfg.withDefaults()
	r := reducer{cfg: cfg, classify: NewClassifier(cfg.GreetingKeywords, cfg.FarewellKeywords)}
	return r.reduce
}

type reducer struct {
	cfg      Config
	classify Classifier
}

func (r reducer) reduce(state State, input framework.Input) (State, []framework.Effect) {
	if state.Mood == "" {
		state.Mood = MoodIdle
	}
	switch in := input.(type) {
	case cmdMount:
		if state.Mounted {
			return state, nil
		}
		state.Mounted = true
		if state.Mood == MoodIdle {
			return r.armIdle(state)
		}
		return r.rearm(state)
	case cmdUnmount:
		if !state.Mounted {
			return state, nil
		}
		state.Mounted = false
		return cancelTimer(state)
	case evTimerFired:
		return r.reduceTimer(state, in)
	case evActivity:
		return r.reduceActivity(state)
	case evSnapshot:
		return r.reduceSnapshot(state, in)
	default:
		return state, nil
	}
}

func (r reducer) reduceTimer(state State, in evTimerFired) (State, []framework.Effect) {
	if !state.Mounted || in.Gen != state.TimerGen || state.TimerPurpose == purposeNone {
		return state, nil
	}
	purpose := state.TimerPurpose
	state.TimerPurpose = purposeNone

	switch purpose {
	case purposeGreetingDelay:
		if state.Mood != MoodIdle {
			return state, nil
		}
		return r.greet(state)
	case purposeEngagementDraw:
		if state.Mood != MoodIdle {
			return state, nil
		}
		if in.Draw > r.cfg.EngagementThreshold {
			state.Mood = MoodEngagementPrompt
			return schedule(state, purposeEngagementDone, r.cfg.EngagementDuration, 0)
		}
		return r.armIdle(state)
	case purposeGreetingDone, purposeEngagementDone, purposeFarewellDone:
		return r.rest(state)
	default:
		return state, nil
	}
}

func (r reducer) reduceActivity(state State) (State, []framework.Effect) {
	switch state.Mood {
	case MoodIdle, MoodEngagementPrompt, MoodInitialGreeting:
		state.Mood = MoodIdle
		return r.armIdle(state)
	default:
		return state, nil
	}
}

func (r reducer) reduceSnapshot(state State, in evSnapshot) (State, []framework.Effect) {
	prevLen := state.LogLen
	prevLoading := state.Loading
	state.LogLen = in.LogLen
	state.Loading = in.Loading

	if prevLen > 0 && in.LogLen == 0 {
		state.Greeted = false
		state.SaidFarewell = false
		state.LastClassifiedID = ""
		state.Mood = MoodIdle
		return r.armIdle(state)
	}

	var effects []framework.Effect
	changed := false
	if in.HasNewest && in.Newest.Role == chat.RoleUser && in.Newest.ID != state.LastClassifiedID {
		state.LastClassifiedID = in.Newest.ID
		switch r.classify.Classify(in.Newest.Content) {
		case IntentFarewell:
			if state.Mood != MoodFarewell && !state.SaidFarewell {
				state.SaidFarewell = true
				state.Mood = MoodFarewell
				state, effects = schedule(state, purposeFarewellDone, r.cfg.FarewellDuration, 0)
				changed = true
			}
		case IntentGreeting:
			if state.Mood != MoodInitialGreeting {
				state, effects = r.greet(state)
				changed = true
			}
		}
	}
	if changed {
		return state, effects
	}

	switch {
	case !prevLoading && in.Loading && (state.Mood == MoodIdle || state.Mood == MoodEngagementPrompt):
		state.Mood = MoodComposing
		return cancelTimer(state)
	case prevLoading && !in.Loading && (state.Mood == MoodComposing || state.Mood == MoodIdle):
		state.Mood = MoodIdle
		return r.armIdle(state)
	}
	return state, nil
}

func (r reducer) greet(state State) (State, []framework.Effect) {
	state.Mood = MoodInitialGreeting
	state.Greeted = true
	return schedule(state, purposeGreetingDone, r.cfg.GreetingDuration, 0)
}

// rest settles after a timed mood: composing while a request is outstanding,
// idle otherwise.
func (r reducer) rest(state State) (State, []framework.Effect) {
	if state.Loading {
		state.Mood = MoodComposing
		return cancelTimer(state)
	}
	state.Mood = MoodIdle
	return r.armIdle(state)
}

// armIdle arms the timer appropriate for an idle presence. Nothing is armed
// once the user said farewell.
func (r reducer) armIdle(state State) (State, []framework.Effect) {
	switch {
	case !state.Mounted || state.Loading || state.SaidFarewell:
		return cancelTimer(state)
	case !state.Greeted:
		return schedule(state, purposeGreetingDelay, r.cfg.GreetingDelay, 0)
	default:
		jitter := r.cfg.EngagementMaxDelay - r.cfg.EngagementMinDelay
		return schedule(state, purposeEngagementDraw, r.cfg.EngagementMinDelay, jitter)
	}
}

// rearm restores the timer of a timed mood after a remount.
func (r reducer) rearm(state State) (State, []framework.Effect) {
	switch state.Mood {
	case MoodInitialGreeting:
		return schedule(state, purposeGreetingDone, r.cfg.GreetingDuration, 0)
	case MoodEngagementPrompt:
		return schedule(state, purposeEngagementDone, r.cfg.EngagementDuration, 0)
	case MoodFarewell:
		return schedule(state, purposeFarewellDone, r.cfg.FarewellDuration, 0)
	default:
		return cancelTimer(state)
	}
}

// schedule replaces whatever mood timer is armed.
func schedule(state State, purpose timerPurpose, after, jitter time.Duration) (State, []framework.Effect) {
	state.TimerGen++
	state.TimerPurpose = purpose
	return state, []framework.Effect{effStartTimer{
		Gen:     state.TimerGen,
		Purpose: purpose,
		After:   after,
		Jitter:  jitter,
	}}
}

func cancelTimer(state State) (State, []framework.Effect) {
	if state.TimerPurpose == purposeNone {
		return state, nil
	}
	state.TimerGen++
	state.TimerPurpose = purposeNone
	return state, []framework.Effect{effCancelTimer{}}
}
