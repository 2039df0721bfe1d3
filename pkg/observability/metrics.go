package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the access-control engine.
type Metrics struct {
	// Resolution metrics
	CheckTotal       *prometheus.CounterVec
	CheckDuration    prometheus.Histogram
	RestrictDuration prometheus.Histogram

	// Mutation metrics
	GrantMutationsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Maintenance metrics
	JanitorPurgedTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all engine metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CheckTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperbase_acl_checks_total",
				Help: "Total number of access checks",
			},
			[]string{"target_type", "outcome"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paperbase_acl_check_duration_seconds",
				Help:    "Access check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RestrictDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paperbase_acl_restrict_duration_seconds",
				Help:    "Queryset restriction duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		GrantMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperbase_acl_grant_mutations_total",
				Help: "Total number of grant mutations",
			},
			[]string{"op"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paperbase_acl_cache_hits_total",
				Help: "Total number of check cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paperbase_acl_cache_misses_total",
				Help: "Total number of check cache misses",
			},
		),
		JanitorPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paperbase_acl_janitor_purged_total",
				Help: "Total number of orphaned grants purged",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.CheckTotal,
		m.CheckDuration,
		m.RestrictDuration,
		m.GrantMutationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.JanitorPurgedTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
