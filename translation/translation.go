// Package translation turns final transcript segments into per-language
// caption translations, fanning one request out per target language.
package translation

import (
	"context"
	"time"
)

// Request identifies one (segment, target language) translation call.
type Request struct {
	SessionID  string
	Sequence   int64
	SourceLang string
	TargetLang string
	Text       string
}

// Translation is the terminal outcome for one (segment, language) pair.
// Exactly one of these is produced per pair; it is never retried afterwards.
type Translation struct {
	SessionID  string    `json:"sessionId"`
	Sequence   int64     `json:"sequence"`
	TargetLang string    `json:"targetLang"`
	SourceText string    `json:"sourceText,omitempty"`
	Text       string    `json:"text,omitempty"`
	// Failed is set when the translation call exhausted its retries; the
	// slot is still occupied so the channel never stalls on it.
	Failed bool `json:"failed,omitempty"`
	// Skipped is set by the reorder buffer for slots that never arrived.
	Skipped     bool      `json:"skipped,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Delivered reports whether the outcome carries caption text.
func (t Translation) Delivered() bool {
	return !t.Failed && !t.Skipped
}

// HealthStatus represents the health of a translator.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Translator converts text between languages. Implementations classify their
// failures: transient errors are returned as-is and retried by the caller,
// non-transient ones are wrapped with retry.Permanent.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)

	// ForgetSession releases any per-session state (conversation context)
	// once the session ends.
	ForgetSession(sessionID string)

	// Health returns the current health status of the translator.
	Health() HealthStatus
}
