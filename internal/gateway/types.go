package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// InitializeResponse is the body of POST /initialize.
//
// Two shapes are seen in the wild: {"success": bool, ...} and
// {"status": "success"|..., ...}. Either field decides the outcome.
type InitializeResponse struct {
	Success     *bool  `json:"success,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	SystemReady *bool  `json:"system_ready,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	SystemReady bool   `json:"system_ready"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Healthy reports whether the service says it is up and initialized.
func (h HealthResponse) Healthy() bool {
	return h.Status == "healthy" && h.SystemReady
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// SourceDocument is a supporting snippet attached to an answer. Stored
// history carries a single "section" and the originating "source" file
// instead of "sections".
type SourceDocument struct {
	Content  string   `json:"content"`
	Score    float64  `json:"score,omitempty"`
	Sections []string `json:"sections,omitempty"`
	Section  string   `json:"section,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// AllSections merges Sections and Section, dropping blanks and duplicates.
func (d SourceDocument) AllSections() []string {
	var out []string
	seen := make(map[string]struct{}, len(d.Sections)+1)
	for _, s := range append(append([]string(nil), d.Sections...), d.Section) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Result          string           `json:"result"`
	SourceDocuments []SourceDocument `json:"source_documents,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	MessageID       FlexID           `json:"message_id,omitempty"`
}

// HistoryTurn is one stored question/answer pair.
type HistoryTurn struct {
	Question   string           `json:"question,omitempty"`
	Answer     string           `json:"answer,omitempty"`
	Timestamp  string           `json:"timestamp,omitempty"`
	Sources    []SourceDocument `json:"sources,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	MessageID  FlexID           `json:"message_id,omitempty"`
}

// HistoryResponse is the body of GET /history/{session_id}. Older servers
// put the turns under "messages".
type HistoryResponse struct {
	SessionID string        `json:"session_id,omitempty"`
	History   []HistoryTurn `json:"history,omitempty"`
	Messages  []HistoryTurn `json:"messages,omitempty"`
}

// Turns returns the stored turns regardless of which key carried them.
func (h HistoryResponse) Turns() []HistoryTurn {
	if h.History != nil {
		return h.History
	}
	return h.Messages
}

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	SampleSize int `json:"sample_size"`
}

// FlexID is an identifier that the server may encode as a number or a
// string.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexID(n.String())
	return nil
}
