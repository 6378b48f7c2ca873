// Package segment normalizes transcript events arriving from the external
// speech-to-text stream into the canonical units the pipeline works on.
package segment

import (
	"context"
	"time"
)

// Event is the raw transcript event as delivered by the speech-to-text
// collaborator. Partials and finals share this shape.
type Event struct {
	SessionID string    `json:"sessionId"`
	Sequence  int64     `json:"sequence"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptSegment is one finalized unit of source-language text. Only final
// events become segments; a segment is immutable once created.
type TranscriptSegment struct {
	SessionID string    `json:"sessionId"`
	Sequence  int64     `json:"sequence"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Source exposes a stream of raw transcript events. The events channel is
// closed when the source stops; a terminal failure is reported on the error
// channel.
type Source interface {
	Stream(ctx context.Context) (<-chan Event, <-chan error)
	Metrics() SourceMetrics
}

// SourceMetrics captures aggregated statistics about a stream source.
type SourceMetrics struct {
	ReceivedEvents int64
	DecodeErrors   int64
	ReconnectCount int64
	LastSequence   int64
}
