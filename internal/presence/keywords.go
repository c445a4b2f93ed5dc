package presence

import "strings"

// Intent is what a user message expresses, as far as the presence cares.
type Intent int

const (
	// IntentNone matches no keyword.
	IntentNone Intent = iota
	// IntentGreeting contains a greeting keyword.
	IntentGreeting
	// IntentFarewell contains a farewell keyword. It wins over a greeting.
	IntentFarewell
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentFarewell:
		return "farewell"
	default:
		return "none"
	}
}

// DefaultGreetingKeywords and DefaultFarewellKeywords are matched as
// case-insensitive substrings. Very short words ("hi", "пока") are left out
// because they occur inside unrelated words.
var (
	DefaultGreetingKeywords = []string{
		"привет", "здравствуй", "добрый день", "доброе утро", "добрый вечер",
		"hello", "good morning", "good afternoon",
	}
	DefaultFarewellKeywords = []string{
		"до свидания", "прощай", "до встречи", "всего доброго", "всего хорошего",
		"goodbye", "bye-bye", "see you",
	}
)

// Classifier maps message text to an Intent.
type Classifier struct {
	greeting []string
	farewell []string
}

// NewClassifier returns a Classifier for the given keyword sets. Nil sets
// fall back to the defaults; an empty non-nil set disables that intent.
func NewClassifier(greeting, farewell []string) Classifier {
	if greeting == nil {
		greeting = DefaultGreetingKeywords
	}
	if farewell == nil {
		farewell = DefaultFarewellKeywords
	}
	return Classifier{greeting: normalize(greeting), farewell: normalize(farewell)}
}

// Classify reports the intent of text. Farewell wins when both match.
func (c Classifier) Classify(text string) Intent {
	text = strings.ToLower(text)
	if containsAny(text, c.farewell) {
		return IntentFarewell
	}
	if containsAny(text, c.greeting) {
		return IntentGreeting
	}
	return IntentNone
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
