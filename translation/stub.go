package translation

import (
	"context"
	"sync"
	"time"
)

// StubConfig configures the stub translator behavior.
type StubConfig struct {
	// ProcessingDelay simulates translation latency.
	ProcessingDelay time.Duration
	// Dictionary maps target language to source text to translated text.
	// Missing entries fall back to a "[lang] " prefix on the original.
	Dictionary map[string]map[string]string
	// Fail, when set, is consulted before translating; a non-nil return is
	// surfaced as the call's error. Use retry.Permanent to model
	// non-transient failures.
	Fail func(req Request) error
}

// Stub is a deterministic Translator for development and tests.
type Stub struct {
	config StubConfig

	mu    sync.Mutex
	calls []Request
}

// NewStub creates a stub translator with the given config.
func NewStub(config StubConfig) *Stub {
	return &Stub{config: config}
}

// Translate returns the dictionary translation, honouring the configured
// delay, failure hook, and context cancellation.
func (s *Stub) Translate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if s.config.Fail != nil {
		if err := s.config.Fail(req); err != nil {
			return "", err
		}
	}

	if langDict, ok := s.config.Dictionary[req.TargetLang]; ok {
		if translated, ok := langDict[req.Text]; ok {
			return translated, nil
		}
	}
	return "[" + req.TargetLang + "] " + req.Text, nil
}

// ForgetSession is a no-op; the stub holds no per-session state.
func (s *Stub) ForgetSession(string) {}

// Health reports the stub as always ready.
func (s *Stub) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "stub translator ready"}
}

// Calls returns a copy of every request seen so far.
func (s *Stub) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}
