package session

import "errors"

var (
	// ErrBlankMessage is returned when the submitted text has no content.
	ErrBlankMessage = errors.New("message is blank")
	// ErrRequestInFlight is returned while an earlier message awaits its answer.
	ErrRequestInFlight = errors.New("a request is already outstanding")
	// ErrNotReady is returned when the readiness handshake has not succeeded.
	ErrNotReady = errors.New("service is not ready")
	// ErrSessionChanged is returned when a history result belongs to a
	// session that is no longer current.
	ErrSessionChanged = errors.New("session changed")
	// ErrClosed is returned once the orchestrator has been closed.
	ErrClosed = errors.New("orchestrator closed")
)
