// Package translog persists released translations and session lifecycle
// events without exerting backpressure on the live broadcast path.
package translog

import (
	"context"
	"time"
)

// TranscriptRecord is one persisted (segment, language) outcome. The
// (SessionID, Sequence, Language) triple is the idempotency key: re-delivering
// a record upserts rather than duplicates.
type TranscriptRecord struct {
	SessionID  string
	Sequence   int64
	Language   string
	SourceText string
	Text       string
	Skipped    bool
	Timestamp  time.Time
}

// LifecycleRecord marks a session state transition.
type LifecycleRecord struct {
	SessionID string
	State     string
	Timestamp time.Time
}

// Store is the persistence sink. Implementations classify their failures:
// transient storage errors are returned as-is for the logger to retry,
// permanent ones are wrapped with retry.Permanent.
type Store interface {
	UpsertTranscript(ctx context.Context, rec TranscriptRecord) error
	RecordLifecycle(ctx context.Context, rec LifecycleRecord) error
	TranscriptCount(ctx context.Context, sessionID string) (int64, error)
}
