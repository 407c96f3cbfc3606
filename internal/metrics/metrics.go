// Package metrics exposes consolidation and cache activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"travel-intel/pkg/cache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "travel_intel"

// Metrics implements cache.Observer and service.ConsolidationRecorder.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	skippedSessions *prometheus.CounterVec
	rejectedRecords *prometheus.CounterVec
	latestVersion   *prometheus.GaugeVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        prometheus.Counter
	cacheEvictions     prometheus.Counter
	cacheDurableErrors *prometheus.CounterVec
}

// New registers every collector on a private registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consolidations_total",
		Help:      "Consolidation runs by destination and outcome",
	}, []string{"destination", "outcome"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consolidation_duration_seconds",
		Help:      "Time spent in a consolidation run",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"outcome"})
	m.skippedSessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_skipped_total",
		Help:      "Sessions that could not be loaded during consolidation",
	}, []string{"destination"})
	m.rejectedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_rejected_total",
		Help:      "Records excluded because their payload could not be hashed",
	}, []string{"destination"})
	m.latestVersion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dataset_latest_version",
		Help:      "Latest consolidated dataset version per destination",
	}, []string{"destination"})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache hits by tier",
	}, []string{"tier"})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that found nothing usable",
	})
	m.cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted from the in-memory tier",
	})
	m.cacheDurableErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "durable_errors_total",
		Help:      "Failed operations against the durable tier",
	}, []string{"op"})

	m.registry.MustRegister(
		m.runs, m.runDuration, m.skippedSessions, m.rejectedRecords, m.latestVersion,
		m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheDurableErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveConsolidation(destinationID, outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(destinationID, outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionsSkipped(destinationID string, n int) {
	m.skippedSessions.WithLabelValues(destinationID).Add(float64(n))
}

func (m *Metrics) RecordsRejected(destinationID string, n int) {
	m.rejectedRecords.WithLabelValues(destinationID).Add(float64(n))
}

func (m *Metrics) DatasetVersion(destinationID string, version int64) {
	m.latestVersion.WithLabelValues(destinationID).Set(float64(version))
}

func (m *Metrics) Hit(tier cache.Tier) { m.cacheHits.WithLabelValues(string(tier)).Inc() }

func (m *Metrics) Miss() { m.cacheMisses.Inc() }

func (m *Metrics) Evicted(n int) { m.cacheEvictions.Add(float64(n)) }

func (m *Metrics) DurableError(op string) { m.cacheDurableErrors.WithLabelValues(op).Inc() }
