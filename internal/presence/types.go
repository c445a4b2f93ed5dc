package presence

import (
	"time"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
)

// Mood is the displayed state of the assistant presence.
type Mood string

const (
	// MoodInitialGreeting waves once after mount or when the user greets.
	MoodInitialGreeting Mood = "initial-greeting"
	// MoodIdle is the resting mood.
	MoodIdle Mood = "idle"
	// MoodEngagementPrompt invites a question after a quiet spell.
	MoodEngagementPrompt Mood = "engagement-prompt"
	// MoodFarewell answers a goodbye; it is shown at most once per log.
	MoodFarewell Mood = "farewell"
	// MoodComposing is shown while an answer is outstanding.
	MoodComposing Mood = "composing"
)

// Config tunes the presence. Zero values take the defaults, as does a
// threshold outside (0,1).
type Config struct {
	GreetingDelay      time.Duration
	GreetingDuration   time.Duration
	EngagementMinDelay time.Duration
	EngagementMaxDelay time.Duration
	EngagementDuration time.Duration
	FarewellDuration   time.Duration
	// EngagementThreshold is the value a draw in [0,1) must exceed for the
	// engagement prompt to show.
	EngagementThreshold float64

	// GreetingKeywords and FarewellKeywords replace the defaults when non-nil.
	GreetingKeywords []string
	FarewellKeywords []string
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		GreetingDelay:       time.Second,
		GreetingDuration:    3 * time.Second,
		EngagementMinDelay:  10 * time.Second,
		EngagementMaxDelay:  20 * time.Second,
		EngagementDuration:  5 * time.Second,
		FarewellDuration:    2 * time.Second,
		EngagementThreshold: 0.7,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GreetingDelay <= 0 {
		c.GreetingDelay = d.GreetingDelay
	}
	if c.GreetingDuration <= 0 {
		c.GreetingDuration = d.GreetingDuration
	}
	if c.EngagementMinDelay <= 0 {
		c.EngagementMinDelay = d.EngagementMinDelay
	}
	if c.EngagementMaxDelay <= 0 {
		c.EngagementMaxDelay = d.EngagementMaxDelay
	}
	if c.EngagementMaxDelay < c.EngagementMinDelay {
		c.EngagementMaxDelay = c.EngagementMinDelay
	}
	if c.EngagementDuration <= 0 {
		c.EngagementDuration = d.EngagementDuration
	}
	if c.FarewellDuration <= 0 {
		c.FarewellDuration = d.FarewellDuration
	}
	if c.EngagementThreshold <= 0 || c.EngagementThreshold >= 1 {
		c.EngagementThreshold = d.EngagementThreshold
	}
	return c
}

// timerPurpose says what the single mood timer does when it fires.
type timerPurpose int

const (
	purposeNone timerPurpose = iota
	purposeGreetingDelay
	purposeGreetingDone
	purposeEngagementDraw
	purposeEngagementDone
	purposeFarewellDone
)

func (p timerPurpose) String() string {
	switch p {
	case purposeGreetingDelay:
		return "greeting-delay"
	case purposeGreetingDone:
		return "greeting-done"
	case purposeEngagementDraw:
		return "engagement-draw"
	case purposeEngagementDone:
		return "engagement-done"
	case purposeFarewellDone:
		return "farewell-done"
	default:
		return "none"
	}
}

// State is the loop-owned state of the presence machine.
type State struct {
	Mood    Mood
	Mounted bool

	Greeted      bool
	SaidFarewell bool

	// LastClassifiedID is the newest user message already classified.
	LastClassifiedID string
	LogLen           int
	Loading          bool

	// TimerGen identifies the armed mood timer; firings with another
	// generation are stale.
	TimerGen     int64
	TimerPurpose timerPurpose
}

// Inputs

type cmdMount struct {
	framework.InputBase
}

type cmdUnmount struct {
	framework.InputBase
}

// evSnapshot carries the parts of the shared chat state the presence reacts
// to.
type evSnapshot struct {
	framework.InputBase
	LogLen    int
	Loading   bool
	Newest    chat.Message
	HasNewest bool
}

type evActivity struct {
	framework.InputBase
	Kind ActivityKind
}

// evTimerFired reports the mood timer. Draw is a uniform value in [0,1),
// only meaningful for the engagement draw.
type evTimerFired struct {
	framework.InputBase
	Gen  int64
	Draw float64
}

// Effects

// effStartTimer arms the mood timer, replacing any armed one. When Jitter is
// positive the delay is After plus a uniform random part of Jitter.
type effStartTimer struct {
	framework.EffectBase
	Gen     int64
	Purpose timerPurpose
	After   time.Duration
	Jitter  time.Duration
}

type effCancelTimer struct {
	framework.EffectBase
}
