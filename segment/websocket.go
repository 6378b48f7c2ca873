package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/retry"
)

// WebSocketSource dials an external speech-to-text websocket stream and
// decodes its JSON transcript events. Connection failures are retried with the
// shared policy; an established connection that drops triggers a reconnect
// rather than ending the stream.
type WebSocketSource struct {
	url      string
	header   http.Header
	dialer   *websocket.Dialer
	policy   retry.Policy
	logger   *zap.SugaredLogger
	counters sourceCounters
}

// NewWebSocketSource constructs a source for the given stream URL. The header
// typically carries the provider's auth token.
func NewWebSocketSource(url string, header http.Header, policy retry.Policy, logger *zap.SugaredLogger) *WebSocketSource {
	return &WebSocketSource{
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
		policy: policy,
		logger: logger,
	}
}

// Stream connects and emits decoded events until ctx is cancelled or the
// reconnect policy is exhausted.
func (s *WebSocketSource) Stream(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		for {
			if ctx.Err() != nil {
				return
			}

			conn, err := s.dial(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("stt stream dial: %w", err)
				}
				return
			}

			err = s.readLoop(ctx, conn, events)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			s.counters.reconnect.Add(1)
			s.logger.Warnw("stt stream disconnected, reconnecting", "url", s.url, "error", err)
		}
	}()

	return events, errs
}

// Metrics returns a snapshot of the source counters.
func (s *WebSocketSource) Metrics() SourceMetrics {
	return s.counters.snapshot()
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		c, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- Event) error {
	done := make(chan struct{})
	defer close(done)

	// Unblock reads when the caller goes away.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.counters.decodeErr.Add(1)
			s.logger.Warnw("undecodable stt event", "error", err)
			continue
		}

		s.counters.received.Add(1)
		s.counters.sequence.Store(ev.Sequence)

		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
