package segment

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
)

func newTestAdapter() *Adapter {
	return NewAdapter(zap.NewNop().Sugar(), metrics.New())
}

func TestNormalizeForwardsFinals(t *testing.T) {
	adapter := newTestAdapter()

	now := time.Now().UTC()
	seg, err := adapter.Normalize(Event{
		SessionID: "s1",
		Sequence:  1,
		Text:      "  hello world  ",
		IsFinal:   true,
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg == nil {
		t.Fatal("expected a segment")
	}
	if seg.Text != "hello world" {
		t.Fatalf("unexpected text: %q", seg.Text)
	}
	if seg.Sequence != 1 || seg.SessionID != "s1" {
		t.Fatalf("unexpected segment identity: %+v", seg)
	}
}

func TestNormalizeDropsPartials(t *testing.T) {
	adapter := newTestAdapter()

	seg, err := adapter.Normalize(Event{SessionID: "s1", Sequence: 1, Text: "partial", IsFinal: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg != nil {
		t.Fatal("partial must not produce a segment")
	}
}

func TestNormalizeRejectsMalformedEvents(t *testing.T) {
	adapter := newTestAdapter()

	cases := []Event{
		{Sequence: 1, Text: "x", IsFinal: true},                   // missing session
		{SessionID: "s1", Sequence: 0, Text: "x", IsFinal: true},  // bad sequence
		{SessionID: "s1", Sequence: 1, Text: "  ", IsFinal: true}, // empty text
	}
	for i, ev := range cases {
		if _, err := adapter.Normalize(ev); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("case %d: expected ErrInvalidEvent, got %v", i, err)
		}
	}
}

func TestNormalizeDropsNonMonotonicFinals(t *testing.T) {
	adapter := newTestAdapter()

	if _, err := adapter.Normalize(Event{SessionID: "s1", Sequence: 5, Text: "five", IsFinal: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seg, err := adapter.Normalize(Event{SessionID: "s1", Sequence: 5, Text: "dup", IsFinal: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg != nil {
		t.Fatal("duplicate sequence must be dropped")
	}

	seg, err = adapter.Normalize(Event{SessionID: "s1", Sequence: 3, Text: "stale", IsFinal: true})
	if err != nil || seg != nil {
		t.Fatalf("stale sequence must be dropped, got seg=%v err=%v", seg, err)
	}

	// Sequences are tracked per session, not globally.
	seg, err = adapter.Normalize(Event{SessionID: "s2", Sequence: 1, Text: "one", IsFinal: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg == nil {
		t.Fatal("other session must be unaffected")
	}
}

func TestForgetResetsWatermark(t *testing.T) {
	adapter := newTestAdapter()

	if _, err := adapter.Normalize(Event{SessionID: "s1", Sequence: 9, Text: "nine", IsFinal: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adapter.Forget("s1")

	seg, err := adapter.Normalize(Event{SessionID: "s1", Sequence: 1, Text: "fresh", IsFinal: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg == nil {
		t.Fatal("expected watermark to reset after Forget")
	}
}
