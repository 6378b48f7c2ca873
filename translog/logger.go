package translog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/retry"
)

// Config bounds the logger's queue and flush behavior.
type Config struct {
	// QueueSize caps the in-memory queue; overflow drops oldest-first.
	QueueSize int
	// BatchSize is the maximum records flushed per cycle.
	BatchSize int
	// FlushInterval wakes the flusher even when no enqueue signalled it.
	FlushInterval time.Duration
	// WriteTimeout bounds each record's write, per attempt.
	WriteTimeout time.Duration
	// Policy retries transient storage failures.
	Policy retry.Policy
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1024,
		BatchSize:     64,
		FlushInterval: 250 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
		Policy:        retry.DefaultPolicy(),
	}
}

type record struct {
	transcript *TranscriptRecord
	lifecycle  *LifecycleRecord
}

// Logger buffers persistence writes in a bounded queue and flushes them
// asynchronously in batches. Enqueueing never blocks: when storage cannot keep
// up the oldest entries are dropped and counted. Persistence is best-effort
// durable, never a gate on live delivery.
type Logger struct {
	cfg    Config
	store  Store
	logger *zap.SugaredLogger
	m      *metrics.Metrics

	mu     sync.Mutex
	queue  []record
	notify chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLogger constructs the logger and starts its flush loop.
func NewLogger(store Store, cfg Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Logger {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = def.Policy
	}

	l := &Logger{
		cfg:    cfg,
		store:  store,
		logger: logger,
		m:      m,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// EnqueueTranscript queues a translation record for persistence.
func (l *Logger) EnqueueTranscript(rec TranscriptRecord) {
	l.enqueue(record{transcript: &rec})
}

// EnqueueLifecycle queues a session lifecycle event for persistence.
func (l *Logger) EnqueueLifecycle(rec LifecycleRecord) {
	l.enqueue(record{lifecycle: &rec})
}

func (l *Logger) enqueue(rec record) {
	l.mu.Lock()
	if len(l.queue) >= l.cfg.QueueSize {
		l.queue = l.queue[1:]
		l.m.LoggerDropped.Inc()
		l.logger.Warnw("translog queue full, dropping oldest record", "queueSize", l.cfg.QueueSize)
	}
	l.queue = append(l.queue, rec)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// QueueDepth reports the records currently waiting to be flushed.
func (l *Logger) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close stops the flush loop and drains the remaining queue until ctx
// expires; whatever is still queued afterwards is discarded with a warning.
func (l *Logger) Close(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done

	for {
		if l.QueueDepth() == 0 {
			return nil
		}
		if ctx.Err() != nil {
			remaining := l.QueueDepth()
			l.m.LoggerDropped.Add(float64(remaining))
			l.logger.Warnw("discarding queued records at shutdown", "remaining", remaining)
			return ctx.Err()
		}
		l.flushBatch(ctx)
	}
}

func (l *Logger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.notify:
		case <-ticker.C:
		}
		for l.flushBatch(context.Background()) {
		}
	}
}

// flushBatch writes up to BatchSize queued records and reports whether a full
// batch was taken (meaning more work is likely waiting).
func (l *Logger) flushBatch(ctx context.Context) bool {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	n := len(l.queue)
	if n > l.cfg.BatchSize {
		n = l.cfg.BatchSize
	}
	batch := make([]record, n)
	copy(batch, l.queue[:n])
	l.queue = l.queue[n:]
	l.mu.Unlock()

	for _, rec := range batch {
		l.write(ctx, rec)
	}
	return n == l.cfg.BatchSize
}

func (l *Logger) write(ctx context.Context, rec record) {
	attempts := 0
	err := l.cfg.Policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		writeCtx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
		defer cancel()

		if rec.transcript != nil {
			return l.store.UpsertTranscript(writeCtx, *rec.transcript)
		}
		return l.store.RecordLifecycle(writeCtx, *rec.lifecycle)
	})

	if attempts > 1 {
		l.m.LoggerRetries.Inc()
	}
	if err != nil {
		l.m.LoggerDropped.Inc()
		l.logger.Errorw("dropping record after storage retries", "error", err)
		return
	}
	l.m.LoggerFlushed.Inc()
}
