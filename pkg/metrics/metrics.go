// Package metrics provides Prometheus metrics for the scoring engine.
//
// A nil *Manager is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the engine.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations prometheus.Counter

	transfersExecuted *prometheus.CounterVec
	transfersRejected *prometheus.CounterVec

	racesIngested     prometheus.Counter
	racesSkipped      *prometheus.CounterVec
	resultsUnresolved prometheus.Counter

	projectionDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers collectors on the given registry instead of a
// fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates the collectors and registers them.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cyclear",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)

	m.cacheHits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Projection lookups served from the cache",
	}, []string{"method"})
	m.cacheMisses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Projection lookups that had to be computed",
	}, []string{"method"})
	m.cacheInvalidations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Times the projection cache was dropped after a write",
	})

	m.transfersExecuted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ledger",
		Name:      "transfers_executed_total",
		Help:      "Transfers recorded, by type",
	}, []string{"type"})
	m.transfersRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ledger",
		Name:      "transfers_rejected_total",
		Help:      "Transfers refused, by reason",
	}, []string{"reason"})

	m.racesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "races_stored_total",
		Help:      "Races persisted with their results",
	})
	m.racesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "races_skipped_total",
		Help:      "Races not stored, by reason",
	}, []string{"reason"})
	m.resultsUnresolved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ingest",
		Name:      "results_unresolved_total",
		Help:      "Results stored without a known rider",
	})

	m.projectionDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "points",
		Name:      "projection_duration_seconds",
		Help:      "Time spent computing a projection on a cache miss",
		Buckets:   m.histogramBuckets,
	}, []string{"method"})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordCacheHit counts a projection served from the cache.
func (m *Manager) RecordCacheHit(method string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(method).Inc()
}

// RecordCacheMiss counts a projection that had to be computed.
func (m *Manager) RecordCacheMiss(method string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(method).Inc()
}

// RecordCacheInvalidation counts a cache drop.
func (m *Manager) RecordCacheInvalidation() {
	if m == nil {
		return
	}
	m.cacheInvalidations.Inc()
}

// RecordTransfer counts an executed transfer of the given type.
func (m *Manager) RecordTransfer(transferType string) {
	if m == nil {
		return
	}
	m.transfersExecuted.WithLabelValues(transferType).Inc()
}

// RecordTransferRejected counts a refused transfer.
func (m *Manager) RecordTransferRejected(reason string) {
	if m == nil {
		return
	}
	m.transfersRejected.WithLabelValues(reason).Inc()
}

// RecordRaceStored counts a persisted race.
func (m *Manager) RecordRaceStored() {
	if m == nil {
		return
	}
	m.racesIngested.Inc()
}

// RecordRaceSkipped counts a race ingestion left out.
func (m *Manager) RecordRaceSkipped(reason string) {
	if m == nil {
		return
	}
	m.racesSkipped.WithLabelValues(reason).Inc()
}

// RecordUnresolvedResult counts a result stored without a rider.
func (m *Manager) RecordUnresolvedResult() {
	if m == nil {
		return
	}
	m.resultsUnresolved.Inc()
}

// ObserveProjection records how long a projection took to compute.
func (m *Manager) ObserveProjection(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.projectionDuration.WithLabelValues(method).Observe(d.Seconds())
}
