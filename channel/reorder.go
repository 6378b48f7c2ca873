// Package channel implements the per-(session, language) reorder buffer.
// Translations complete in whatever order the provider answers; each channel
// releases them downstream in strict sequence order, synthesizing skip markers
// for slots that never resolve so one lost segment cannot stall the stream.
package channel

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/translation"
)

// ID identifies one ordered output stream.
type ID struct {
	SessionID string
	Language  string
}

// Config bounds the reorder buffer.
type Config struct {
	// SlotTimeout is how long the buffer waits for a missing slot while a
	// later slot is already buffered, before releasing a skip marker.
	SlotTimeout time.Duration
	// MaxPending caps the out-of-order slots held; exceeding it forces the
	// oldest gap to resolve as a skip.
	MaxPending int
	// CompletionBuffer is the capacity of the inbound completions channel.
	CompletionBuffer int
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		SlotTimeout:      15 * time.Second,
		MaxPending:       64,
		CompletionBuffer: 16,
	}
}

// Channel owns the reorder state for one (session, language) stream. A single
// goroutine consumes completions and emits ordered releases; no other writer
// touches the state.
type Channel struct {
	id     ID
	cfg    Config
	logger *zap.SugaredLogger
	m      *metrics.Metrics

	completions chan translation.Translation
	released    chan translation.Translation
	closeOnce   sync.Once
}

// New starts the reorder loop for the given stream.
func New(id ID, cfg Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Channel {
	if cfg.SlotTimeout <= 0 {
		cfg.SlotTimeout = DefaultConfig().SlotTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultConfig().MaxPending
	}
	if cfg.CompletionBuffer <= 0 {
		cfg.CompletionBuffer = DefaultConfig().CompletionBuffer
	}

	c := &Channel{
		id:          id,
		cfg:         cfg,
		logger:      logger,
		m:           m,
		completions: make(chan translation.Translation, cfg.CompletionBuffer),
		released:    make(chan translation.Translation),
	}
	go c.run()
	return c
}

// ID returns the stream identity.
func (c *Channel) ID() ID { return c.id }

// Completions is the sink for resolved translations, fed by the fan-out.
func (c *Channel) Completions() chan<- translation.Translation {
	return c.completions
}

// Released emits translations in strict sequence order. It is closed after
// Close once the remaining buffer has been flushed.
func (c *Channel) Released() <-chan translation.Translation {
	return c.released
}

// Close stops intake. The caller must guarantee no further Completions sends;
// buffered slots are flushed in order (gaps become skips) before Released
// closes.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.completions) })
}

func (c *Channel) run() {
	defer close(c.released)

	pending := make(map[int64]translation.Translation)
	next := int64(1)
	var deadline time.Time

	for {
		var timerC <-chan time.Time
		if len(pending) > 0 {
			if deadline.IsZero() {
				deadline = time.Now().Add(c.cfg.SlotTimeout)
			}
			timerC = time.After(time.Until(deadline))
		}

		select {
		case tr, ok := <-c.completions:
			if !ok {
				c.flushRemaining(pending, next)
				return
			}
			next, deadline = c.accept(tr, pending, next, deadline)

		case <-timerC:
			// The slot timed out with at least one later slot buffered.
			c.m.ReorderSkips.WithLabelValues(c.id.Language).Inc()
			c.logger.Warnw("slot timed out, releasing skip marker",
				"session", c.id.SessionID,
				"language", c.id.Language,
				"sequence", next,
			)
			c.release(c.skipMarker(next))
			next = c.flushContiguous(pending, next+1)
			deadline = time.Time{}
		}
	}
}

func (c *Channel) accept(tr translation.Translation, pending map[int64]translation.Translation, next int64, deadline time.Time) (int64, time.Time) {
	if tr.Sequence < next {
		c.m.ReorderLateDrops.WithLabelValues(c.id.Language).Inc()
		c.logger.Warnw("dropping late completion for released slot",
			"session", c.id.SessionID,
			"language", c.id.Language,
			"sequence", tr.Sequence,
			"nextExpected", next,
		)
		return next, deadline
	}
	if _, dup := pending[tr.Sequence]; dup {
		c.m.ReorderLateDrops.WithLabelValues(c.id.Language).Inc()
		return next, deadline
	}

	if tr.Sequence == next {
		c.release(tr)
		return c.flushContiguous(pending, next+1), time.Time{}
	}

	pending[tr.Sequence] = tr
	if len(pending) > c.cfg.MaxPending {
		// Bound memory: force the oldest gap to resolve now.
		c.m.ReorderForcedSkip.WithLabelValues(c.id.Language).Inc()
		c.logger.Warnw("pending buffer full, forcing skip",
			"session", c.id.SessionID,
			"language", c.id.Language,
			"sequence", next,
			"pending", len(pending),
		)
		c.release(c.skipMarker(next))
		return c.flushContiguous(pending, next+1), time.Time{}
	}
	return next, deadline
}

// flushContiguous releases buffered entries starting at next until it hits a
// gap, returning the new next-expected sequence.
func (c *Channel) flushContiguous(pending map[int64]translation.Translation, next int64) int64 {
	for {
		tr, ok := pending[next]
		if !ok {
			return next
		}
		delete(pending, next)
		c.release(tr)
		next++
	}
}

// flushRemaining drains the buffer on close: everything still held is released
// in order, with skip markers for the gaps, so subscribers see a consistent
// tail.
func (c *Channel) flushRemaining(pending map[int64]translation.Translation, next int64) {
	var max int64
	for seq := range pending {
		if seq > max {
			max = seq
		}
	}
	for ; next <= max; next++ {
		if tr, ok := pending[next]; ok {
			c.release(tr)
			continue
		}
		c.m.ReorderSkips.WithLabelValues(c.id.Language).Inc()
		c.release(c.skipMarker(next))
	}
}

func (c *Channel) release(tr translation.Translation) {
	c.released <- tr
}

func (c *Channel) skipMarker(seq int64) translation.Translation {
	return translation.Translation{
		SessionID:   c.id.SessionID,
		Sequence:    seq,
		TargetLang:  c.id.Language,
		Skipped:     true,
		CompletedAt: time.Now().UTC(),
	}
}
