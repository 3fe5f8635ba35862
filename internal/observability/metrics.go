package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate by provider and outcome.
	ProviderCallsTotal *prometheus.CounterVec

	// Upstream provider latency. Watch for: one provider degrading while the other absorbs traffic.
	ProviderDuration *prometheus.HistogramVec

	// Provider failures by error category (see provider.CategorizeError).
	ProviderErrorsTotal *prometheus.CounterVec

	// Times the aggregator moved past a failing provider to the next one.
	ProviderFallbacksTotal *prometheus.CounterVec

	// Terminal aggregator failures. reason=unconfigured|all_failed.
	NoProviderAvailableTotal *prometheus.CounterVec

	// Circuit breaker state per provider (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	// Cache hits and misses per store kind (current, forecast, historical).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Remote cache backend errors by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses for the same key. Both callers fetch upstream.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Total weather lookups and per-location breakdown (allow-list; others go to "other").
	WeatherQueriesTotal           *prometheus.CounterVec
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Alert sweeps, their duration, per-alert evaluation failures and triggers.
	AlertSweepsTotal           prometheus.Counter
	AlertSweepDurationSeconds  prometheus.Histogram
	AlertEvaluationErrorsTotal *prometheus.CounterVec
	AlertTriggersTotal         *prometheus.CounterVec
	AlertWebhookFailuresTotal  prometheus.Counter
	AlertsRegistered           prometheus.Gauge

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of upstream weather provider calls",
		},
		[]string{"provider", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "Upstream weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerErrorsTotal",
			Help: "Provider failures by error category",
		},
		[]string{"provider", "category"},
	)
	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerFallbacksTotal",
			Help: "Times the aggregator skipped a failed provider",
		},
		[]string{"kind", "provider"},
	)
	NoProviderAvailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noProviderAvailableTotal",
			Help: "Aggregator calls that ended without any provider answering",
		},
		[]string{"kind", "reason"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per provider: 0 closed, 1 half-open, 2 open",
		},
		[]string{"provider"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits per store",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses per store",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"cacheType", "operation"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent misses for the same key",
		},
		[]string{"cacheType"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming runs",
			Buckets: prometheus.DefBuckets,
		},
	)
	WeatherQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups by kind",
		},
		[]string{"kind"},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	AlertSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertSweepsTotal",
			Help: "Total number of alert evaluation sweeps",
		},
	)
	AlertSweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertSweepDurationSeconds",
			Help:    "Duration of a full alert sweep",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60},
		},
	)
	AlertEvaluationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertEvaluationErrorsTotal",
			Help: "Alert evaluations that failed and were skipped",
		},
		[]string{"conditionType"},
	)
	AlertTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertTriggersTotal",
			Help: "Alerts whose condition tripped",
		},
		[]string{"conditionType", "channel"},
	)
	AlertWebhookFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertWebhookFailuresTotal",
			Help: "Webhook notifications that could not be delivered",
		},
	)
	AlertsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertsRegistered",
			Help: "Number of alerts currently registered",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration, ProviderErrorsTotal,
		ProviderFallbacksTotal, NoProviderAvailableTotal, CircuitBreakerState,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheStampedeDetectedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		AlertSweepsTotal, AlertSweepDurationSeconds, AlertEvaluationErrorsTotal,
		AlertTriggersTotal, AlertWebhookFailuresTotal, AlertsRegistered,
		RateLimitDeniedTotal,
	)
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordWeatherQuery records a weather query of the given kind for a location.
func RecordWeatherQuery(kind, location string) {
	WeatherQueriesTotal.WithLabelValues(kind).Inc()
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		WeatherQueriesByLocationTotal.WithLabelValues(loc).Inc()
	} else {
		WeatherQueriesByLocationTotal.WithLabelValues("other").Inc()
	}
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
