package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personaops_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "personaops_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	generationLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personaops_generation_lookups_total",
		Help: "Cache-or-generate outcomes by function (hit, miss, lost_race)",
	}, []string{"function", "outcome"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "personaops_generation_duration_seconds",
		Help:    "Duration of result generation on a cache miss",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"function", "result"})

	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personaops_provider_calls_total",
		Help: "Calls to external providers by result",
	}, []string{"provider", "result"})

	demoFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personaops_demo_fallbacks_total",
		Help: "Responses served from demo data, by function and reason",
	}, []string{"function", "reason"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "personaops_circuit_breaker_state",
		Help: "Provider circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"provider"})

	backfillRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personaops_icp_backfill_rows_total",
		Help: "Analyzer outputs linked to an ICP by the backfill job",
	}, []string{"source"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personaops_rate_limited_requests_total",
		Help: "Requests rejected by the per-user rate limiter",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveGenerationLookup counts a cache hit, miss or lost insert race.
func ObserveGenerationLookup(function, outcome string) {
	generationLookups.WithLabelValues(function, outcome).Inc()
}

// ObserveGeneration records how long producing a fresh result took.
func ObserveGeneration(function, result string, duration time.Duration) {
	generationDuration.WithLabelValues(function, result).Observe(duration.Seconds())
}

// ObserveProviderCall counts one provider call.
func ObserveProviderCall(provider, result string) {
	providerCalls.WithLabelValues(provider, result).Inc()
}

// ObserveDemoFallback counts a response served from demo data.
func ObserveDemoFallback(function, reason string) {
	demoFallbacks.WithLabelValues(function, reason).Inc()
}

// SetBreakerState publishes a breaker's numeric state.
func SetBreakerState(provider string, state int) {
	breakerState.WithLabelValues(provider).Set(float64(state))
}

// ObserveBackfill adds to the backfilled row count.
func ObserveBackfill(source string, rows int64) {
	if rows <= 0 {
		return
	}
	backfillRows.WithLabelValues(source).Add(float64(rows))
}

// ObserveRateLimited counts a rejected request.
func ObserveRateLimited() {
	rateLimited.Inc()
}
