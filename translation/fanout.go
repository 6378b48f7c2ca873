package translation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/segment"
)

// FanOut dispatches one concurrent translation request per target language
// for every final segment. Each request gets a per-attempt timeout and the
// shared retry policy; an outcome (success or failure marker) is always
// emitted so no sequence slot is left unresolved by a failing language.
type FanOut struct {
	translator Translator
	policy     retry.Policy
	timeout    time.Duration
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics

	wg sync.WaitGroup
}

// NewFanOut constructs a FanOut. timeout bounds each individual attempt.
func NewFanOut(translator Translator, policy retry.Policy, timeout time.Duration, logger *zap.SugaredLogger, m *metrics.Metrics) *FanOut {
	return &FanOut{
		translator: translator,
		policy:     policy,
		timeout:    timeout,
		logger:     logger,
		metrics:    m,
	}
}

// Dispatch starts one translation per entry in sinks, keyed by target
// language. It returns immediately; outcomes arrive on the per-language sinks
// in whatever order the requests complete.
func (f *FanOut) Dispatch(ctx context.Context, seg segment.TranscriptSegment, sourceLang string, sinks map[string]chan<- Translation) {
	for lang, sink := range sinks {
		f.wg.Add(1)
		go f.translate(ctx, seg, sourceLang, lang, sink)
	}
}

// Wait blocks until every dispatched request has resolved or ctx expires.
func (f *FanOut) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fan-out drain: %w", ctx.Err())
	}
}

func (f *FanOut) translate(ctx context.Context, seg segment.TranscriptSegment, sourceLang, targetLang string, sink chan<- Translation) {
	defer f.wg.Done()

	req := Request{
		SessionID:  seg.SessionID,
		Sequence:   seg.Sequence,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Text:       seg.Text,
	}

	var translated string
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		text, err := f.translator.Translate(attemptCtx, req)
		if err != nil {
			return err
		}
		translated = text
		return nil
	})

	outcome := Translation{
		SessionID:   seg.SessionID,
		Sequence:    seg.Sequence,
		TargetLang:  targetLang,
		SourceText:  seg.Text,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		outcome.Failed = true
		f.metrics.TranslationFailures.WithLabelValues(targetLang).Inc()
		f.metrics.TranslationsCompleted.WithLabelValues(targetLang, "failed").Inc()
		f.logger.Warnw("translation failed, emitting failure marker",
			"session", seg.SessionID,
			"sequence", seg.Sequence,
			"language", targetLang,
			"error", err,
		)
	} else {
		outcome.Text = translated
		f.metrics.TranslationsCompleted.WithLabelValues(targetLang, "ok").Inc()
	}

	select {
	case sink <- outcome:
	case <-ctx.Done():
		// Session tore down before the outcome could be handed off.
	}
}
