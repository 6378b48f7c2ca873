// Package session owns the caption session lifecycle and wires each active
// session's segment flow through fan-out, reordering, broadcast, and logging.
package session

import (
	"errors"
	"time"
)

// State is a session's lifecycle position. Transitions only move forward:
// Created -> Active -> Ended.
type State string

const (
	StateCreated State = "created"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

var (
	// ErrNotFound is returned for operations on unknown sessions.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned for out-of-order lifecycle calls;
	// the session is left untouched.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrNotAccepting is returned when segments arrive for a session that
	// is not active.
	ErrNotAccepting = errors.New("session not accepting segments")
	// ErrUnknownLanguage is returned when a requested language is not in
	// the catalog.
	ErrUnknownLanguage = errors.New("unsupported language")
	// ErrNoTargetLanguages is returned when a session is created without
	// any target language.
	ErrNoTargetLanguages = errors.New("at least one target language required")
)

// Session models one live captioning session. Values handed out by the
// orchestrator are copies; a session is immutable once Ended.
type Session struct {
	ID             string    `json:"id"`
	SourceLang     string    `json:"sourceLang"`
	TargetLangs    []string  `json:"targetLangs"`
	State          State     `json:"state"`
	LoggingEnabled bool      `json:"loggingEnabled"`
	CreatedAt      time.Time `json:"createdAt"`
	EndedAt        time.Time `json:"endedAt,omitempty"`
}

func (s Session) clone() Session {
	s.TargetLangs = append([]string(nil), s.TargetLangs...)
	return s
}
