// Package metrics provides the centralized Prometheus metrics registry for krx-quant.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "krx_quant"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	SignalsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_generated_total",
		Help:      "Total number of trading signals generated by signal type",
	}, []string{"signal"})
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total number of market data requests by source and outcome",
	}, []string{"source", "status"})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Total number of market data cache lookups by backend and result",
	}, []string{"backend", "result"})
	CircuitBreakerTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of market data circuit breaker trips",
	})
)

// Histogram metrics
var (
	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of market data requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(SignalsGeneratedTotal)
		registry.MustRegister(ProviderRequestsTotal)
		registry.MustRegister(CacheLookupsTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)
		registry.MustRegister(ProviderRequestDuration)

		// Register scanner metrics
		registry.MustRegister(ScanRunsTotal)
		registry.MustRegister(ScanDuration)
		registry.MustRegister(ScanSymbolsSkippedTotal)
		registry.MustRegister(ScanResultsReturned)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(BacktestTradesTotal)
		registry.MustRegister(BacktestTotalReturn)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordSignal records a generated signal.
func RecordSignal(signal string) {
	SignalsGeneratedTotal.WithLabelValues(signal).Inc()
}

// RecordProviderRequest records a market data request outcome and latency.
func RecordProviderRequest(source, status string, durationSeconds float64) {
	ProviderRequestsTotal.WithLabelValues(source, status).Inc()
	ProviderRequestDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(backend, result).Inc()
}

// RecordCircuitBreakerTrip records a circuit breaker trip event.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTripsTotal.Inc()
}
