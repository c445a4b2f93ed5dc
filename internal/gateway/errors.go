package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a gateway failure. A Kind is itself an error so callers
// can match with errors.Is(err, gateway.ErrConnectivity).
type Kind string

const (
	// ErrConnectivity means no response was received.
	ErrConnectivity Kind = "connectivity"
	// ErrServerRejected means a non-success status or an explicit failure
	// payload.
	ErrServerRejected Kind = "server-rejected"
	// ErrMalformedResponse means a success status with a body that could not
	// be used.
	ErrMalformedResponse Kind = "malformed-response"
)

// Error implements error.
func (k Kind) Error() string { return string(k) }

// Error is a classified failure of one gateway operation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	// Detail is the server-provided explanation, when there is one.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gateway %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Reason returns a short human-readable explanation suitable for a chat
// turn or a status line.
func (e *Error) Reason() string {
	switch e.Kind {
	case ErrConnectivity:
		if e.Err != nil {
			return fmt.Sprintf("service unreachable: %v", e.Err)
		}
		return "service unreachable"
	case ErrServerRejected:
		if e.Detail != "" {
			return e.Detail
		}
		if e.Status != 0 {
			return fmt.Sprintf("service rejected the request (%d %s)", e.Status, http.StatusText(e.Status))
		}
		return "service rejected the request"
	case ErrMalformedResponse:
		if e.Detail != "" {
			return "unusable response from service: " + e.Detail
		}
		return "unusable response from service"
	default:
		return e.Error()
	}
}

// KindOf returns the Kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// detailFromBody extracts an explanation from an error payload. FastAPI
// style bodies carry it under "detail", either as a string or as a list of
// validation entries with "msg".
func detailFromBody(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 200 || strings.HasPrefix(text, "<") {
			return ""
		}
		return text
	}
	for _, key := range []string{"detail", "message", "error"} {
		switch v := payload[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case []any:
			var msgs []string
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					if msg, ok := m["msg"].(string); ok && msg != "" {
						msgs = append(msgs, msg)
					}
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return ""
}
