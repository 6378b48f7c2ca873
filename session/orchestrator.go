package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/language"
	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/segment"
	"github.com/MustfainTariq/Jama-Translator/translation"
	"github.com/MustfainTariq/Jama-Translator/translog"
)

// Config tunes the per-session pipeline.
type Config struct {
	// Channel bounds each reorder buffer.
	Channel channel.Config
	// TranslateTimeout bounds each translation attempt.
	TranslateTimeout time.Duration
	// TranslatePolicy retries transient translation failures.
	TranslatePolicy retry.Policy
	// EndGracePeriod is how long End waits for in-flight translations
	// before cancelling them.
	EndGracePeriod time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Channel:          channel.DefaultConfig(),
		TranslateTimeout: 4 * time.Second,
		TranslatePolicy:  retry.DefaultPolicy(),
		EndGracePeriod:   10 * time.Second,
	}
}

// Orchestrator owns the session registry and supervises each session's
// pipeline. It never sits on the hot path: segments flow adapter -> fan-out ->
// reorder channel -> hub/logger through per-channel goroutines it only starts
// and stops.
type Orchestrator struct {
	cfg        Config
	translator translation.Translator
	hub        *hub.Hub
	translog   *translog.Logger
	adapter    *segment.Adapter
	logger     *zap.SugaredLogger
	m          *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	session  Session
	pipeline *pipeline
}

// pipeline holds one active session's moving parts.
type pipeline struct {
	ctx      context.Context
	cancel   context.CancelFunc
	fanout   *translation.FanOut
	channels map[string]*channel.Channel
	sinks    map[string]chan<- translation.Translation
	pumps    sync.WaitGroup
}

// NewOrchestrator wires an orchestrator over the shared components.
func NewOrchestrator(cfg Config, translator translation.Translator, h *hub.Hub, tl *translog.Logger, logger *zap.SugaredLogger, m *metrics.Metrics) *Orchestrator {
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = DefaultConfig().TranslateTimeout
	}
	if cfg.TranslatePolicy.MaxAttempts == 0 {
		cfg.TranslatePolicy = DefaultConfig().TranslatePolicy
	}
	if cfg.EndGracePeriod <= 0 {
		cfg.EndGracePeriod = DefaultConfig().EndGracePeriod
	}

	return &Orchestrator{
		cfg:        cfg,
		translator: translator,
		hub:        h,
		translog:   tl,
		adapter:    segment.NewAdapter(logger, m),
		logger:     logger,
		m:          m,
		sessions:   make(map[string]*sessionState),
	}
}

// Create registers a new session in the Created state.
func (o *Orchestrator) Create(sourceLang string, targetLangs []string, loggingEnabled bool) (Session, error) {
	if !language.IsSupported(sourceLang) {
		return Session{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, sourceLang)
	}
	if len(targetLangs) == 0 {
		return Session{}, ErrNoTargetLanguages
	}

	seen := make(map[string]bool, len(targetLangs))
	targets := make([]string, 0, len(targetLangs))
	for _, lang := range targetLangs {
		if !language.IsSupported(lang) {
			return Session{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
		}
		if seen[lang] {
			continue
		}
		seen[lang] = true
		targets = append(targets, lang)
	}

	sess := Session{
		ID:             uuid.NewString(),
		SourceLang:     sourceLang,
		TargetLangs:    targets,
		State:          StateCreated,
		LoggingEnabled: loggingEnabled,
		CreatedAt:      time.Now().UTC(),
	}

	o.mu.Lock()
	o.sessions[sess.ID] = &sessionState{session: sess}
	o.mu.Unlock()

	o.translog.EnqueueLifecycle(translog.LifecycleRecord{
		SessionID: sess.ID,
		State:     string(StateCreated),
		Timestamp: sess.CreatedAt,
	})
	o.logger.Infow("session created",
		"session", sess.ID,
		"sourceLang", sourceLang,
		"targetLangs", targets,
	)
	return sess.clone(), nil
}

// Start transitions Created -> Active, instantiating one channel per target
// language. A channel registration failure fails the whole start and leaves
// the session in Created.
func (o *Orchestrator) Start(id string) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if st.session.State != StateCreated {
		return Session{}, fmt.Errorf("%w: start from %s", ErrInvalidTransition, st.session.State)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		ctx:      ctx,
		cancel:   cancel,
		fanout:   translation.NewFanOut(o.translator, o.cfg.TranslatePolicy, o.cfg.TranslateTimeout, o.logger, o.m),
		channels: make(map[string]*channel.Channel, len(st.session.TargetLangs)),
		sinks:    make(map[string]chan<- translation.Translation, len(st.session.TargetLangs)),
	}

	for _, lang := range st.session.TargetLangs {
		chID := channel.ID{SessionID: id, Language: lang}
		if err := o.hub.Register(chID); err != nil {
			for registered := range p.channels {
				o.hub.CloseChannel(channel.ID{SessionID: id, Language: registered})
				p.channels[registered].Close()
			}
			cancel()
			return Session{}, fmt.Errorf("instantiate channel %s: %w", lang, err)
		}

		ch := channel.New(chID, o.cfg.Channel, o.logger, o.m)
		p.channels[lang] = ch
		p.sinks[lang] = ch.Completions()

		p.pumps.Add(1)
		go o.pump(p, ch, st.session.LoggingEnabled)
	}

	st.pipeline = p
	st.session.State = StateActive

	o.translog.EnqueueLifecycle(translog.LifecycleRecord{
		SessionID: id,
		State:     string(StateActive),
		Timestamp: time.Now().UTC(),
	})
	o.logger.Infow("session started", "session", id)
	return st.session.clone(), nil
}

// Ingest routes one raw transcript event into its session's pipeline. Partials
// are dropped at the adapter; only active sessions accept segments.
func (o *Orchestrator) Ingest(ev segment.Event) error {
	o.mu.RLock()
	st, ok := o.sessions[ev.SessionID]
	if !ok {
		o.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotFound, ev.SessionID)
	}
	if st.session.State != StateActive {
		o.mu.RUnlock()
		return fmt.Errorf("%w: %s is %s", ErrNotAccepting, ev.SessionID, st.session.State)
	}

	seg, err := o.adapter.Normalize(ev)
	if err != nil || seg == nil {
		o.mu.RUnlock()
		return err
	}

	st.pipeline.fanout.Dispatch(st.pipeline.ctx, *seg, st.session.SourceLang, st.pipeline.sinks)
	o.mu.RUnlock()
	return nil
}

// End transitions Active -> Ended: stop intake, drain in-flight translations
// within the grace period, flush and close the channels, disconnect
// subscribers, and release per-session state.
func (o *Orchestrator) End(id string) (Session, error) {
	o.mu.Lock()
	st, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if st.session.State != StateActive {
		o.mu.Unlock()
		return Session{}, fmt.Errorf("%w: end from %s", ErrInvalidTransition, st.session.State)
	}
	p := st.pipeline
	st.pipeline = nil
	st.session.State = StateEnded
	st.session.EndedAt = time.Now().UTC()
	ended := st.session.clone()
	o.mu.Unlock()

	// Give in-flight translations the grace period, then cut them off.
	graceCtx, cancelGrace := context.WithTimeout(context.Background(), o.cfg.EndGracePeriod)
	if err := p.fanout.Wait(graceCtx); err != nil {
		o.logger.Warnw("grace period expired, cancelling in-flight translations", "session", id)
		p.cancel()
		// Workers unblock on cancellation, so this wait is bounded.
		_ = p.fanout.Wait(context.Background())
	}
	cancelGrace()

	// No more completions can arrive: flush and close the channels, then
	// wait for the pumps to publish the tail.
	for _, ch := range p.channels {
		ch.Close()
	}
	p.pumps.Wait()

	for lang := range p.channels {
		o.hub.CloseChannel(channel.ID{SessionID: id, Language: lang})
	}
	p.cancel()

	o.translator.ForgetSession(id)
	o.adapter.Forget(id)

	o.translog.EnqueueLifecycle(translog.LifecycleRecord{
		SessionID: id,
		State:     string(StateEnded),
		Timestamp: ended.EndedAt,
	})
	o.logger.Infow("session ended", "session", id)
	return ended, nil
}

// Get returns a copy of the session.
func (o *Orchestrator) Get(id string) (Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st, ok := o.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st.session.clone(), nil
}

// List returns copies of all known sessions, newest first.
func (o *Orchestrator) List() []Session {
	o.mu.RLock()
	sessions := make([]Session, 0, len(o.sessions))
	for _, st := range o.sessions {
		sessions = append(sessions, st.session.clone())
	}
	o.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// Subscribers reports the connected subscriber count for a session.
func (o *Orchestrator) Subscribers(id string) int {
	return o.hub.SessionSubscribers(id)
}

// Close ends every active session, used at process shutdown.
func (o *Orchestrator) Close() {
	o.mu.RLock()
	active := make([]string, 0, len(o.sessions))
	for id, st := range o.sessions {
		if st.session.State == StateActive {
			active = append(active, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range active {
		if _, err := o.End(id); err != nil {
			o.logger.Errorw("failed to end session at shutdown", "session", id, "error", err)
		}
	}
}

// pump forwards one channel's ordered releases to the hub and, when enabled,
// to the durable logger. It exits when the channel's release stream closes.
func (o *Orchestrator) pump(p *pipeline, ch *channel.Channel, loggingEnabled bool) {
	defer p.pumps.Done()

	for tr := range ch.Released() {
		o.hub.Publish(ch.ID(), hub.FromTranslation(tr))

		if !loggingEnabled {
			continue
		}
		o.translog.EnqueueTranscript(translog.TranscriptRecord{
			SessionID:  tr.SessionID,
			Sequence:   tr.Sequence,
			Language:   tr.TargetLang,
			SourceText: tr.SourceText,
			Text:       tr.Text,
			Skipped:    tr.Skipped || tr.Failed,
			Timestamp:  tr.CompletedAt,
		})
	}
}
