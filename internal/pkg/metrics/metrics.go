// Package metrics holds the Prometheus collectors for report runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	FetchOutcomes   *prometheus.CounterVec
	FetchAttempts   *prometheus.HistogramVec
	RunDuration     *prometheus.HistogramVec
	AppsAbandoned   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ArchiveDropped  prometheus.Counter
	ArchiveFailures prometheus.Counter
}

// New creates a Metrics instance on its own registry. Go runtime and process
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Name:      "fetch_outcomes_total",
			Help:      "Report downloads by endpoint and classified outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attribution",
			Name:      "fetch_attempts",
			Help:      "HTTP attempts spent per report download.",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		}, []string{"endpoint"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attribution",
			Name:      "run_duration_seconds",
			Help:      "Wall time of orchestrator runs that missed the cache.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"kind"}),
		AppsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Name:      "apps_abandoned_total",
			Help:      "Apps excluded from a run because their mandatory calls failed.",
		}, []string{"kind"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Name:      "cache_lookups_total",
			Help:      "Report cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		ArchiveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attribution",
			Name:      "archive_dropped_total",
			Help:      "Raw exports not archived because the archive queue was full.",
		}),
		ArchiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attribution",
			Name:      "archive_failures_total",
			Help:      "Raw exports the archive backend failed to store.",
		}),
	}

	reg.MustRegister(
		m.FetchOutcomes,
		m.FetchAttempts,
		m.RunDuration,
		m.AppsAbandoned,
		m.CacheLookups,
		m.ArchiveDropped,
		m.ArchiveFailures,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFetch records one classified download.
func (m *Metrics) ObserveFetch(endpoint, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.FetchOutcomes.WithLabelValues(endpoint, outcome).Inc()
	if attempts > 0 {
		m.FetchAttempts.WithLabelValues(endpoint).Observe(float64(attempts))
	}
}

// ObserveRun records how long a run of kind took.
func (m *Metrics) ObserveRun(kind string, started time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// ObserveCache records a cache lookup result: hit, miss or error.
func (m *Metrics) ObserveCache(kind, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveAbandoned counts one abandoned app.
func (m *Metrics) ObserveAbandoned(kind string) {
	if m == nil {
		return
	}
	m.AppsAbandoned.WithLabelValues(kind).Inc()
}

// ObserveArchive counts archive drops and backend failures.
func (m *Metrics) ObserveArchive(dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		m.ArchiveDropped.Inc()
		return
	}
	m.ArchiveFailures.Inc()
}
