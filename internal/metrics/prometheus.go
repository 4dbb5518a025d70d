package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
)

// Default histogram buckets for fetch duration (in seconds)
var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// PrometheusMetrics wraps prometheus collectors for the tiered cache. It
// implements cache.Observer.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	operationsTotal *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	sweptTotal      *prometheus.CounterVec

	// Histograms
	fetchDuration *prometheus.HistogramVec

	// Gauges
	entries      *prometheus.GaugeVec
	breakerState prometheus.Gauge

	breakerTransitions *prometheus.CounterVec
}

// NewPrometheus creates collectors on a private registry. buckets may be nil.
func NewPrometheus(namespace string, buckets []float64) *PrometheusMetrics {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Cache operations by op, backend and outcome",
			},
			[]string{"op", "backend", "outcome"},
		),

		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_fallbacks_total",
				Help:      "Durable writes kept in memory instead, by reason",
			},
			[]string{"reason"}, // quota, unavailable, serialization, other
		),

		sweptTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_swept_entries_total",
				Help:      "Entries removed by cleanup sweeps",
			},
			[]string{"backend"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_fetch_duration_seconds",
				Help:      "Duration of GetOrSet fetches on a miss",
				Buckets:   buckets,
			},
			[]string{"domain", "status"},
		),

		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Entries held per backend at the last stats refresh",
			},
			[]string{"backend"},
		),

		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "durable_breaker_state",
				Help:      "Durable store circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
		),

		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "durable_breaker_transitions_total",
				Help:      "Durable store circuit breaker transitions by target state",
			},
			[]string{"to_state"},
		),
	}

	registry.MustRegister(
		pm.operationsTotal,
		pm.fallbacksTotal,
		pm.sweptTotal,
		pm.fetchDuration,
		pm.entries,
		pm.breakerState,
		pm.breakerTransitions,
	)
	return pm
}

// Observe records a cache operation.
func (pm *PrometheusMetrics) Observe(r cache.Result) {
	if r.Op == cache.OpFetch {
		status := "ok"
		if r.Err != nil {
			status = "error"
		}
		pm.fetchDuration.WithLabelValues(string(r.Key.Domain()), status).Observe(r.Duration.Seconds())
		return
	}

	pm.operationsTotal.WithLabelValues(string(r.Op), r.Backend.String(), r.Outcome.String()).Inc()

	switch {
	case r.Outcome == cache.OutcomeFallback:
		pm.fallbacksTotal.WithLabelValues(fallbackReason(r.Err)).Inc()
	case r.Op == cache.OpCleanup && r.Removed > 0:
		pm.sweptTotal.WithLabelValues(r.Backend.String()).Add(float64(r.Removed))
	}
}

// SetEntries publishes per-backend entry counts.
func (pm *PrometheusMetrics) SetEntries(s cache.Stats) {
	pm.entries.WithLabelValues(cache.BackendMemory.String()).Set(float64(s.Memory))
	pm.entries.WithLabelValues(cache.BackendDurable.String()).Set(float64(s.Durable))
}

// SetBreakerState publishes the durable breaker state.
func (pm *PrometheusMetrics) SetBreakerState(s circuitbreaker.State) {
	pm.breakerState.Set(float64(s))
}

// RecordBreakerTransition is shaped for circuitbreaker.Breaker.OnStateChange.
func (pm *PrometheusMetrics) RecordBreakerTransition(_, to circuitbreaker.State) {
	pm.breakerState.Set(float64(to))
	pm.breakerTransitions.WithLabelValues(to.String()).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom collectors
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, cache.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, cache.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, cache.ErrSerialization):
		return "serialization"
	default:
		return "other"
	}
}
