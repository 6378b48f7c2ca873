package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/segment"
	"github.com/MustfainTariq/Jama-Translator/translation"
	"github.com/MustfainTariq/Jama-Translator/translog"
)

type fixture struct {
	orch  *Orchestrator
	hub   *hub.Hub
	store *translog.MemoryStore
	log   *translog.Logger
}

func newFixture(t *testing.T, stub *translation.Stub) *fixture {
	t.Helper()

	m := metrics.New()
	logger := zap.NewNop().Sugar()
	h := hub.New(hub.Config{BacklogSize: 8, SubscriberQueue: 32}, logger, m)
	store := translog.NewMemoryStore()
	tl := translog.NewLogger(store, translog.Config{
		QueueSize:     64,
		BatchSize:     16,
		FlushInterval: 5 * time.Millisecond,
		Policy:        retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, logger, m)
	t.Cleanup(func() { _ = tl.Close(context.Background()) })

	cfg := Config{
		Channel:          channel.Config{SlotTimeout: 250 * time.Millisecond, MaxPending: 16},
		TranslateTimeout: time.Second,
		TranslatePolicy:  retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		EndGracePeriod:   2 * time.Second,
	}
	return &fixture{
		orch:  NewOrchestrator(cfg, stub, h, tl, logger, m),
		hub:   h,
		store: store,
		log:   tl,
	}
}

func finalEvent(id string, seq int64) segment.Event {
	return segment.Event{
		SessionID: id,
		Sequence:  seq,
		Text:      "Hello world.",
		IsFinal:   true,
		Timestamp: time.Now().UTC(),
	}
}

func receive(t *testing.T, sub *hub.Subscriber, n int) []hub.Message {
	t.Helper()
	out := make([]hub.Message, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case msg, ok := <-sub.Out():
			if !ok {
				t.Fatalf("subscriber closed after %d of %d", len(out), n)
			}
			out = append(out, msg)
		case <-timeout:
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t, translation.NewStub(translation.StubConfig{}))

	sess, err := f.orch.Create("en", []string{"es", "fr"}, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.State != StateCreated {
		t.Fatalf("expected Created, got %s", sess.State)
	}

	started, err := f.orch.Start(sess.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.State != StateActive {
		t.Fatalf("expected Active, got %s", started.State)
	}

	ended, err := f.orch.End(sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.State != StateEnded || ended.EndedAt.IsZero() {
		t.Fatalf("expected Ended with timestamp, got %+v", ended)
	}

	// All three lifecycle events reach the store.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.store.Lifecycle()) == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	events := f.store.Lifecycle()
	if len(events) != 3 {
		t.Fatalf("expected 3 lifecycle events, got %d", len(events))
	}
	for i, want := range []string{"created", "active", "ended"} {
		if events[i].State != want {
			t.Fatalf("event %d: got %s want %s", i, events[i].State, want)
		}
	}
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	f := newFixture(t, translation.NewStub(translation.StubConfig{}))

	sess, err := f.orch.Create("en", []string{"es"}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// End before start.
	if _, err := f.orch.End(sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := f.orch.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Double start.
	if _, err := f.orch.Start(sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := f.orch.End(sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	// Double end.
	if _, err := f.orch.End(sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := f.orch.Start("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateValidatesLanguages(t *testing.T) {
	f := newFixture(t, translation.NewStub(translation.StubConfig{}))

	if _, err := f.orch.Create("xx", []string{"es"}, false); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
	if _, err := f.orch.Create("en", nil, false); !errors.Is(err, ErrNoTargetLanguages) {
		t.Fatalf("expected ErrNoTargetLanguages, got %v", err)
	}
	if _, err := f.orch.Create("en", []string{"es", "xx"}, false); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}

	sess, err := f.orch.Create("en", []string{"es", "es", "fr"}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sess.TargetLangs) != 2 {
		t.Fatalf("expected duplicates collapsed, got %v", sess.TargetLangs)
	}
}

func TestSegmentsFlowToSubscribersInOrder(t *testing.T) {
	stub := translation.NewStub(translation.StubConfig{
		Dictionary: map[string]map[string]string{
			"es": {"Hello world.": "Hola mundo."},
		},
	})
	f := newFixture(t, stub)

	sess, _ := f.orch.Create("en", []string{"es"}, true)
	if _, err := f.orch.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	sub, err := f.hub.Subscribe(channel.ID{SessionID: sess.ID, Language: "es"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for seq := int64(1); seq <= 3; seq++ {
		if err := f.orch.Ingest(finalEvent(sess.ID, seq)); err != nil {
			t.Fatalf("ingest %d: %v", seq, err)
		}
	}

	got := receive(t, sub, 3)
	for i, msg := range got {
		if msg.Sequence != int64(i+1) {
			t.Fatalf("position %d: sequence %d", i, msg.Sequence)
		}
		if msg.Text != "Hola mundo." {
			t.Fatalf("unexpected text: %q", msg.Text)
		}
	}

	// Released translations also reach the durable log.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count, _ := f.store.TranscriptCount(context.Background(), sess.ID); count == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("transcripts never reached the store")
}

func TestPartialsAndUnknownSessionsAreRejected(t *testing.T) {
	f := newFixture(t, translation.NewStub(translation.StubConfig{}))

	sess, _ := f.orch.Create("en", []string{"es"}, false)
	if _, err := f.orch.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	partial := finalEvent(sess.ID, 1)
	partial.IsFinal = false
	if err := f.orch.Ingest(partial); err != nil {
		t.Fatalf("partials are dropped, not errors: %v", err)
	}

	if err := f.orch.Ingest(finalEvent("ghost", 1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailedLanguageDoesNotAffectOthers(t *testing.T) {
	stub := translation.NewStub(translation.StubConfig{
		Fail: func(req translation.Request) error {
			if req.TargetLang == "fr" {
				return errors.New("provider down")
			}
			return nil
		},
	})
	f := newFixture(t, stub)

	sess, _ := f.orch.Create("en", []string{"es", "fr"}, false)
	if _, err := f.orch.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	esSub, _ := f.hub.Subscribe(channel.ID{SessionID: sess.ID, Language: "es"})
	frSub, _ := f.hub.Subscribe(channel.ID{SessionID: sess.ID, Language: "fr"})

	if err := f.orch.Ingest(finalEvent(sess.ID, 1)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	es := receive(t, esSub, 1)
	if es[0].Skipped {
		t.Fatalf("es should deliver text: %+v", es[0])
	}

	fr := receive(t, frSub, 1)
	if !fr[0].Skipped {
		t.Fatalf("fr should deliver a skipped marker: %+v", fr[0])
	}
	if fr[0].Sequence != 1 {
		t.Fatalf("marker must occupy slot 1: %+v", fr[0])
	}
}

func TestEndStopsIntakeAndCleansUp(t *testing.T) {
	stub := translation.NewStub(translation.StubConfig{ProcessingDelay: 50 * time.Millisecond})
	f := newFixture(t, stub)

	sess, _ := f.orch.Create("en", []string{"es"}, false)
	if _, err := f.orch.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	sub, _ := f.hub.Subscribe(channel.ID{SessionID: sess.ID, Language: "es"})

	// Segments 18-20 are in flight when the session ends.
	for seq := int64(18); seq <= 20; seq++ {
		ev := finalEvent(sess.ID, seq)
		if err := f.orch.Ingest(ev); err != nil {
			t.Fatalf("ingest %d: %v", seq, err)
		}
	}

	if _, err := f.orch.End(sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Segment 21 arrives too late.
	if err := f.orch.Ingest(finalEvent(sess.ID, 21)); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("expected ErrNotAccepting, got %v", err)
	}

	// The subscriber got the in-flight segments (17 leading slots are
	// flushed as skips when the channel closes) and was disconnected.
	var sequences []int64
	for msg := range sub.Out() {
		if !msg.Skipped {
			sequences = append(sequences, msg.Sequence)
		}
	}
	if len(sequences) != 3 || sequences[0] != 18 || sequences[2] != 20 {
		t.Fatalf("unexpected delivered sequences: %v", sequences)
	}

	if n := f.hub.SessionSubscribers(sess.ID); n != 0 {
		t.Fatalf("dangling subscriber registrations: %d", n)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := newFixture(t, translation.NewStub(translation.StubConfig{}))

	first, _ := f.orch.Create("en", []string{"es"}, false)
	time.Sleep(2 * time.Millisecond)
	second, _ := f.orch.Create("en", []string{"fr"}, false)

	list := f.orch.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatal("expected newest-first ordering")
	}
}
