// Package metrics exposes the service counters for every bounded-drop policy
// in the pipeline. Overflow and skip events must always leave an observable
// signal, so each policy increments exactly one counter here.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instruments for one service instance. Tests construct a
// fresh instance so counters never collide across cases.
type Metrics struct {
	registry *prometheus.Registry

	SegmentsReceived    prometheus.Counter
	PartialsDropped     prometheus.Counter
	NonMonotonicDropped prometheus.Counter

	TranslationsCompleted *prometheus.CounterVec
	TranslationFailures   *prometheus.CounterVec

	ReorderSkips      *prometheus.CounterVec
	ReorderLateDrops  *prometheus.CounterVec
	ReorderForcedSkip *prometheus.CounterVec

	SubscriberDisconnects *prometheus.CounterVec
	Subscribers           *prometheus.GaugeVec

	LoggerDropped prometheus.Counter
	LoggerFlushed prometheus.Counter
	LoggerRetries prometheus.Counter
}

// New builds a Metrics set backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SegmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingress_segments_total",
			Help: "Final transcript segments accepted into the pipeline.",
		}),
		PartialsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingress_partials_dropped_total",
			Help: "Partial transcript events dropped at the adapter.",
		}),
		NonMonotonicDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingress_non_monotonic_total",
			Help: "Final segments rejected for non-monotonic sequence numbers.",
		}),
		TranslationsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translations_completed_total",
			Help: "Translation outcomes per target language.",
		}, []string{"language", "outcome"}),
		TranslationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translation_failures_total",
			Help: "Translation requests that exhausted retries per language.",
		}, []string{"language"}),
		ReorderSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reorder_slot_skips_total",
			Help: "Sequence slots released as skip markers after the slot timeout.",
		}, []string{"language"}),
		ReorderLateDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reorder_late_drops_total",
			Help: "Translations dropped for arriving at or below an already-released slot.",
		}, []string{"language"}),
		ReorderForcedSkip: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reorder_forced_skips_total",
			Help: "Skips forced by the bounded pending map overflowing.",
		}, []string{"language"}),
		SubscriberDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriber_disconnects_total",
			Help: "Subscribers dropped by the hub, by reason.",
		}, []string{"reason"}),
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subscribers_connected",
			Help: "Currently connected subscribers per session.",
		}, []string{"session"}),
		LoggerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "translog_dropped_total",
			Help: "Records dropped oldest-first from the durable logger queue.",
		}),
		LoggerFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "translog_flushed_total",
			Help: "Records successfully flushed to storage.",
		}),
		LoggerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "translog_flush_retries_total",
			Help: "Flush batches that needed at least one retry.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
