package segment

import (
	"context"
	"time"
)

// StubSourceConfig configures the stub source behavior.
type StubSourceConfig struct {
	// Events is the script emitted in order.
	Events []Event
	// EmitDelay is the wait between events.
	EmitDelay time.Duration
}

// StubSource emits a predefined sequence of transcript events. It is useful
// for development and tests until a real speech-to-text stream is attached.
type StubSource struct {
	config   StubSourceConfig
	counters sourceCounters
}

// NewStubSource constructs a stub source that replays the provided events.
func NewStubSource(config StubSourceConfig) *StubSource {
	config.Events = append([]Event(nil), config.Events...)
	return &StubSource{config: config}
}

// Stream emits each scripted event while honouring context cancellation.
func (s *StubSource) Stream(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		for _, ev := range s.config.Events {
			if s.config.EmitDelay > 0 {
				select {
				case <-time.After(s.config.EmitDelay):
				case <-ctx.Done():
					return
				}
			}

			s.counters.received.Add(1)
			s.counters.sequence.Store(ev.Sequence)

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs
}

// Metrics returns a snapshot of the source counters.
func (s *StubSource) Metrics() SourceMetrics {
	return s.counters.snapshot()
}
