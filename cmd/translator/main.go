// Package main contains the translator service entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/config"
	"github.com/MustfainTariq/Jama-Translator/di"
	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
	"github.com/MustfainTariq/Jama-Translator/segment"
	"github.com/MustfainTariq/Jama-Translator/server"
	"github.com/MustfainTariq/Jama-Translator/session"
	"github.com/MustfainTariq/Jama-Translator/translation"
	"github.com/MustfainTariq/Jama-Translator/translog"
)

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()

	var store translog.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := translog.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatalw("failed to connect to database", "error", err)
		}
		if err := gormStore.Migrate(ctx); err != nil {
			logger.Fatalw("failed to migrate schema", "error", err)
		}
		store = gormStore
	} else {
		logger.Warnw("no database configured, transcripts are kept in memory")
		store = translog.NewMemoryStore()
	}

	logCfg := translog.DefaultConfig()
	logCfg.QueueSize = cfg.LoggerQueueSize
	logCfg.BatchSize = cfg.LoggerBatchSize
	transLog := translog.NewLogger(store, logCfg, logger, m)

	var translator translation.Translator
	if cfg.OpenAIAPIKey != "" {
		translator = translation.NewOpenAITranslator(translation.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
	} else {
		logger.Warnw("no OpenAI key configured, using the stub translator")
		translator = translation.NewStub(translation.StubConfig{})
	}

	hubCfg := hub.DefaultConfig()
	hubCfg.BacklogSize = cfg.BacklogSize
	hubCfg.SubscriberQueue = cfg.SubscriberQueue
	h := hub.New(hubCfg, logger, m)

	sessCfg := session.DefaultConfig()
	sessCfg.Channel = channel.Config{SlotTimeout: cfg.SlotTimeout, MaxPending: channel.DefaultConfig().MaxPending}
	sessCfg.TranslateTimeout = cfg.TranslateTimeout
	sessCfg.EndGracePeriod = cfg.EndGracePeriod

	c := di.NewContainer(
		di.WithLogger(logger),
		di.WithMetrics(m),
		di.WithTranslator(translator),
		di.WithStore(store),
		di.WithTransLog(transLog),
		di.WithHub(h),
	)
	c.Orchestrator = session.NewOrchestrator(sessCfg, c.Translator, c.Hub, c.TransLog, c.Logger, c.Metrics)

	if cfg.SourceURL != "" {
		go runSource(ctx, cfg, c.Orchestrator, logger)
	}

	srv := server.New(c.Orchestrator, c.Hub, c.Store, logger, m)
	go func() {
		logger.Infow("api listening", "addr", cfg.ServerAddr)
		if err := srv.Listen(cfg.ServerAddr); err != nil {
			logger.Fatalw("api server terminated", "error", err)
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
	go func() {
		logger.Infow("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server terminated", "error", err)
		}
	}()

	<-signals
	logger.Infow("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("api shutdown failed", "error", err)
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	// Ending sessions drains in-flight translations into the logger, so the
	// orchestrator goes down before the logger does.
	c.Orchestrator.Close()
	if err := transLog.Close(shutdownCtx); err != nil {
		logger.Errorw("transcript logger close failed", "error", err, "pending", transLog.QueueDepth())
	}
	logger.Infow("shutdown complete")
}

// runSource bootstraps one session fed from an upstream caption websocket
// and pumps its segments into the orchestrator until ctx is cancelled.
func runSource(ctx context.Context, cfg config.Config, orch *session.Orchestrator, logger *zap.SugaredLogger) {
	sess, err := orch.Create(cfg.SourceLang, cfg.SourceTargets, true)
	if err != nil {
		logger.Errorw("source session create failed", "error", err)
		return
	}
	if _, err := orch.Start(sess.ID); err != nil {
		logger.Errorw("source session start failed", "error", err)
		return
	}
	logger.Infow("ingesting from upstream source",
		"url", cfg.SourceURL, "session", sess.ID, "targets", cfg.SourceTargets)

	source := segment.NewWebSocketSource(cfg.SourceURL, nil, retry.DefaultPolicy(), logger)
	events, errs := source.Stream(ctx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.SessionID == "" {
				ev.SessionID = sess.ID
			}
			if err := orch.Ingest(ev); err != nil {
				logger.Warnw("source segment rejected",
					"sequence", ev.Sequence, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warnw("source stream error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func newLogger() *zap.SugaredLogger {
	level := strings.ToLower(os.Getenv("TRANSLATOR_LOG_LEVEL"))
	cfg := zap.NewProductionConfig()

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger.Sugar()
}
