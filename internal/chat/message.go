// Package chat holds the conversation vocabulary shared by the orchestrator
// and the presence machine, and the state object that connects them.
package chat

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the person using the client.
	RoleUser Role = "user"
	// RoleAssistant marks an answer (or an error turn) from the service.
	RoleAssistant Role = "assistant"
)

// Source is a supporting snippet returned alongside an answer.
type Source struct {
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Sections []string `json:"sections,omitempty"`
}

// Message is one entry of the conversation log.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Sources    []Source  `json:"sources,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      bool      `json:"error,omitempty"`
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// IsBlank reports whether text has no non-space characters.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// CloneMessages returns a copy of msgs that shares no slices with it.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Sources != nil {
			out[i].Sources = make([]Source, len(m.Sources))
			for j, s := range m.Sources {
				out[i].Sources[j] = s
				out[i].Sources[j].Sections = append([]string(nil), s.Sections...)
			}
		}
	}
	return out
}

// Count returns the number of messages with the given role.
func Count(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
