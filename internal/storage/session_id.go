package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CurrentSessionKey is the KV key holding the active session identifier.
const CurrentSessionKey = "currentSession"

const (
	sessionAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
	sessionSuffixLen = 9
)

var sessionIDPattern = regexp.MustCompile(`^session_\d+_[0-9a-z]{9}$`)

// NewSessionID mints "session_<unix-millis>_<9 chars of [0-9a-z]>".
func NewSessionID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(sessionAlphabet, sessionSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate session suffix: %w", err)
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix), nil
}

// ValidSessionID reports whether id has the minted shape.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// LoadOrCreateSessionID returns the stored session identifier, minting and
// persisting a new one when none is stored. created reports which happened.
//
// Any non-empty stored value is accepted as-is; identifiers written by other
// clients need not follow the minted shape.
func LoadOrCreateSessionID(kv KV, now time.Time) (id string, created bool, err error) {
	stored, ok, err := kv.Get(CurrentSessionKey)
	if err != nil {
		return "", false, err
	}
	if ok && strings.TrimSpace(stored) != "" {
		return stored, false, nil
	}
	id, err = RotateSessionID(kv, now)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// RotateSessionID mints a new identifier and persists it as current.
func RotateSessionID(kv KV, now time.Time) (string, error) {
	id, err := NewSessionID(now)
	if err != nil {
		return "", err
	}
	if err := kv.Set(CurrentSessionKey, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return id, nil
}
