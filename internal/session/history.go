package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/gateway"
)

// timestampLayouts are tried in order. The service writes Python isoformat
// values, which omit the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Reconstruct rebuilds a message log from stored turns. A turn with a
// non-empty question yields a user message and a turn with a non-empty
// answer yields an assistant message, in that order. IDs are derived from the
// server message id, or from the session and turn index when the id is
// missing or repeated, so reloading the
// same history produces the same IDs. Turns without a usable timestamp get
// fallback.
func Reconstruct(sessionID string, turns []gateway.HistoryTurn, fallback time.Time) []chat.Message {
	msgs := make([]chat.Message, 0, 2*len(turns))
	seen := make(map[string]struct{}, len(turns))
	for i, turn := range turns {
		base := fmt.Sprintf("%s#%d", sessionID, i)
		if id := string(turn.MessageID); id != "" {
			// A repeated server id falls back to the index form.
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				base = fmt.Sprintf("%s#m%s", sessionID, id)
			}
		}
		at := parseTimestamp(turn.Timestamp, fallback)

		if !chat.IsBlank(turn.Question) {
			msgs = append(msgs, chat.Message{
				ID:        base + ":q",
				Role:      chat.RoleUser,
				Content:   turn.Question,
				CreatedAt: at,
			})
		}
		if !chat.IsBlank(turn.Answer) {
			msgs = append(msgs, chat.Message{
				ID:         base + ":a",
				Role:       chat.RoleAssistant,
				Content:    turn.Answer,
				CreatedAt:  at,
				Sources:    convertSources(turn.Sources),
				Confidence: chat.Clamp01(turn.Confidence),
			})
		}
	}
	return msgs
}

func parseTimestamp(v string, fallback time.Time) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return fallback
}
