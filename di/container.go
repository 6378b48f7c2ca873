package di

import (
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/session"
	"github.com/MustfainTariq/Jama-Translator/translation"
	"github.com/MustfainTariq/Jama-Translator/translog"
)

// Container holds all service dependencies for the translation service.
// It enables dependency injection for both production and test environments.
type Container struct {
	Logger       *zap.SugaredLogger
	Metrics      *metrics.Metrics
	Translator   translation.Translator
	Store        translog.Store
	TransLog     *translog.Logger
	Hub          *hub.Hub
	Orchestrator *session.Orchestrator
}

// ContainerOption configures a container during construction.
type ContainerOption func(*Container)

// WithLogger sets the structured logger.
func WithLogger(l *zap.SugaredLogger) ContainerOption {
	return func(c *Container) { c.Logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) ContainerOption {
	return func(c *Container) { c.Metrics = m }
}

// WithTranslator sets the translator implementation.
func WithTranslator(t translation.Translator) ContainerOption {
	return func(c *Container) { c.Translator = t }
}

// WithStore sets the durable transcript store.
func WithStore(s translog.Store) ContainerOption {
	return func(c *Container) { c.Store = s }
}

// WithTransLog sets the asynchronous transcript logger.
func WithTransLog(l *translog.Logger) ContainerOption {
	return func(c *Container) { c.TransLog = l }
}

// WithHub sets the broadcast hub.
func WithHub(h *hub.Hub) ContainerOption {
	return func(c *Container) { c.Hub = h }
}

// WithOrchestrator sets the session orchestrator.
func WithOrchestrator(o *session.Orchestrator) ContainerOption {
	return func(c *Container) { c.Orchestrator = o }
}

// NewContainer creates a container with the given options.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTestContainer creates a fully wired container backed by stub
// implementations for testing without external dependencies.
func NewTestContainer() *Container {
	logger := zap.NewNop().Sugar()
	m := metrics.New()
	translator := translation.NewStub(translation.StubConfig{})
	store := translog.NewMemoryStore()

	tl := translog.NewLogger(store, translog.Config{
		QueueSize:     64,
		BatchSize:     16,
		FlushInterval: 5 * time.Millisecond,
		Policy:        retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, logger, m)

	h := hub.New(hub.Config{BacklogSize: 8, SubscriberQueue: 32}, logger, m)

	cfg := session.Config{
		Channel:          channel.Config{SlotTimeout: 250 * time.Millisecond, MaxPending: 16},
		TranslateTimeout: time.Second,
		TranslatePolicy:  retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		EndGracePeriod:   2 * time.Second,
	}

	return &Container{
		Logger:       logger,
		Metrics:      m,
		Translator:   translator,
		Store:        store,
		TransLog:     tl,
		Hub:          h,
		Orchestrator: session.NewOrchestrator(cfg, translator, h, tl, logger, m),
	}
}
