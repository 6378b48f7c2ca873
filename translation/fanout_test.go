package translation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/segment"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func testSegment(seq int64) segment.TranscriptSegment {
	return segment.TranscriptSegment{
		SessionID: "s1",
		Sequence:  seq,
		Text:      "Hello world.",
		Timestamp: time.Now().UTC(),
	}
}

func TestDispatchTranslatesEveryLanguage(t *testing.T) {
	stub := NewStub(StubConfig{
		Dictionary: map[string]map[string]string{
			"es": {"Hello world.": "Hola mundo."},
			"fr": {"Hello world.": "Bonjour le monde."},
		},
	})
	fanout := NewFanOut(stub, testPolicy(), time.Second, zap.NewNop().Sugar(), metrics.New())

	es := make(chan Translation, 1)
	fr := make(chan Translation, 1)
	fanout.Dispatch(context.Background(), testSegment(1), "en", map[string]chan<- Translation{
		"es": es,
		"fr": fr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := fanout.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	got := map[string]Translation{}
	for _, ch := range []chan Translation{es, fr} {
		tr := <-ch
		got[tr.TargetLang] = tr
	}

	if got["es"].Text != "Hola mundo." {
		t.Fatalf("unexpected es translation: %+v", got["es"])
	}
	if got["fr"].Text != "Bonjour le monde." {
		t.Fatalf("unexpected fr translation: %+v", got["fr"])
	}
	for lang, tr := range got {
		if tr.Failed || tr.Skipped {
			t.Fatalf("%s: unexpected failure marker: %+v", lang, tr)
		}
		if tr.Sequence != 1 || tr.SessionID != "s1" {
			t.Fatalf("%s: outcome lost segment identity: %+v", lang, tr)
		}
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	stub := NewStub(StubConfig{
		Fail: func(req Request) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return errors.New("rate limited")
			}
			return nil
		},
	})
	fanout := NewFanOut(stub, testPolicy(), time.Second, zap.NewNop().Sugar(), metrics.New())

	sink := make(chan Translation, 1)
	fanout.Dispatch(context.Background(), testSegment(1), "en", map[string]chan<- Translation{"es": sink})

	tr := <-sink
	if tr.Failed {
		t.Fatalf("expected success after retries: %+v", tr)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDispatchEmitsFailureMarkerOnExhaustion(t *testing.T) {
	stub := NewStub(StubConfig{
		Fail: func(req Request) error {
			if req.TargetLang == "es" {
				return errors.New("provider down")
			}
			return nil
		},
	})
	fanout := NewFanOut(stub, testPolicy(), time.Second, zap.NewNop().Sugar(), metrics.New())

	es := make(chan Translation, 1)
	fr := make(chan Translation, 1)
	fanout.Dispatch(context.Background(), testSegment(2), "en", map[string]chan<- Translation{
		"es": es,
		"fr": fr,
	})

	esOut := <-es
	if !esOut.Failed {
		t.Fatalf("expected failure marker for es: %+v", esOut)
	}
	if esOut.Sequence != 2 {
		t.Fatalf("failure marker must keep its slot: %+v", esOut)
	}

	// Failure in one language never propagates to another.
	frOut := <-fr
	if frOut.Failed {
		t.Fatalf("fr should be unaffected: %+v", frOut)
	}
}

func TestDispatchDoesNotRetryPermanentFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	stub := NewStub(StubConfig{
		Fail: func(Request) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return retry.Permanent(errors.New("unsupported language"))
		},
	})
	fanout := NewFanOut(stub, testPolicy(), time.Second, zap.NewNop().Sugar(), metrics.New())

	sink := make(chan Translation, 1)
	fanout.Dispatch(context.Background(), testSegment(1), "en", map[string]chan<- Translation{"xx": sink})

	tr := <-sink
	if !tr.Failed {
		t.Fatalf("expected failure marker: %+v", tr)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", attempts)
	}
}

func TestWaitTimesOutOnSlowTranslations(t *testing.T) {
	stub := NewStub(StubConfig{ProcessingDelay: time.Second})
	fanout := NewFanOut(stub, testPolicy(), 2*time.Second, zap.NewNop().Sugar(), metrics.New())

	sink := make(chan Translation, 1)
	fanout.Dispatch(context.Background(), testSegment(1), "en", map[string]chan<- Translation{"es": sink})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := fanout.Wait(ctx); err == nil {
		t.Fatal("expected drain timeout")
	}
}
