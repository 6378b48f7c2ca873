package segment

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
)

// ErrInvalidEvent marks an event the adapter rejects outright rather than
// drops silently.
var ErrInvalidEvent = errors.New("invalid transcript event")

// Adapter turns raw transcript events into final TranscriptSegments. It drops
// partials, rejects malformed events, and enforces monotonic sequence numbers
// per session: a non-monotonic final is a data-quality anomaly and is dropped
// with a warning, never reordered here.
type Adapter struct {
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	mu      sync.Mutex
	lastSeq map[string]int64
}

// NewAdapter constructs an Adapter. The metrics set may not be nil.
func NewAdapter(logger *zap.SugaredLogger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		logger:  logger,
		metrics: m,
		lastSeq: make(map[string]int64),
	}
}

// Normalize validates and converts one event. It returns (nil, nil) when the
// event is dropped (partial or non-monotonic) and an error wrapping
// ErrInvalidEvent for malformed input.
func (a *Adapter) Normalize(ev Event) (*TranscriptSegment, error) {
	if ev.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidEvent)
	}
	if ev.Sequence < 1 {
		return nil, fmt.Errorf("%w: sequence %d out of range", ErrInvalidEvent, ev.Sequence)
	}

	if !ev.IsFinal {
		a.metrics.PartialsDropped.Inc()
		return nil, nil
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty final segment text", ErrInvalidEvent)
	}

	a.mu.Lock()
	last := a.lastSeq[ev.SessionID]
	if ev.Sequence <= last {
		a.mu.Unlock()
		a.metrics.NonMonotonicDropped.Inc()
		a.logger.Warnw("dropping non-monotonic final segment",
			"session", ev.SessionID,
			"sequence", ev.Sequence,
			"lastSequence", last,
		)
		return nil, nil
	}
	a.lastSeq[ev.SessionID] = ev.Sequence
	a.mu.Unlock()

	a.metrics.SegmentsReceived.Inc()

	return &TranscriptSegment{
		SessionID: ev.SessionID,
		Sequence:  ev.Sequence,
		Text:      text,
		Timestamp: ev.Timestamp,
	}, nil
}

// Forget clears the sequence watermark for a session after it ends.
func (a *Adapter) Forget(sessionID string) {
	a.mu.Lock()
	delete(a.lastSeq, sessionID)
	a.mu.Unlock()
}
