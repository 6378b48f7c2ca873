package translog

import (
	"context"
	"sync"
)

type transcriptKey struct {
	sessionID string
	sequence  int64
	language  string
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	// Fail, when set, is consulted before every write; a non-nil return is
	// surfaced as the write's error.
	Fail func() error

	mu          sync.Mutex
	transcripts map[transcriptKey]TranscriptRecord
	lifecycle   []LifecycleRecord
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transcripts: make(map[transcriptKey]TranscriptRecord)}
}

// UpsertTranscript stores the record, replacing any previous version of the
// same (session, sequence, language) key.
func (s *MemoryStore) UpsertTranscript(_ context.Context, rec TranscriptRecord) error {
	if s.Fail != nil {
		if err := s.Fail(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.transcripts[transcriptKey{rec.SessionID, rec.Sequence, rec.Language}] = rec
	s.mu.Unlock()
	return nil
}

// RecordLifecycle appends the lifecycle event.
func (s *MemoryStore) RecordLifecycle(_ context.Context, rec LifecycleRecord) error {
	if s.Fail != nil {
		if err := s.Fail(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lifecycle = append(s.lifecycle, rec)
	s.mu.Unlock()
	return nil
}

// TranscriptCount returns how many distinct records the session holds.
func (s *MemoryStore) TranscriptCount(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for key := range s.transcripts {
		if key.sessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// Transcript returns a stored record, if present.
func (s *MemoryStore) Transcript(sessionID string, sequence int64, language string) (TranscriptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.transcripts[transcriptKey{sessionID, sequence, language}]
	return rec, ok
}

// Lifecycle returns a copy of the recorded lifecycle events.
func (s *MemoryStore) Lifecycle() []LifecycleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LifecycleRecord(nil), s.lifecycle...)
}
