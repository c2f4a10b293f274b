package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Flow-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Operation counters
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "operations_total",
			Help:      "Total flow operations executed",
		},
		[]string{"operation", "status"},
	)

	// Interpreter turns by final state
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "turns_total",
			Help:      "Total interpreter turns by final state",
		},
		[]string{"state"},
	)

	// Provider round trip duration
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "provider_duration_seconds",
			Help:      "Inference provider call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	// Provider failures by kind
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "provider_errors_total",
			Help:      "Classified inference provider failures",
		},
		[]string{"kind"},
	)

	// Cache lookups
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache namespace and result",
		},
		[]string{"cache", "result"},
	)

	// Cache evictions
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "cache_evictions_total",
			Help:      "Cache entries removed by sweep or invalidation",
		},
		[]string{"cache", "reason"},
	)

	// Speech items
	SpeechItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "speech_items_total",
			Help:      "Synthesized step audio items by status",
		},
		[]string{"status"},
	)

	// Active sessions gauge
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "flow_api",
			Name:      "active_sessions",
			Help:      "Number of open editing sessions",
		},
	)
)

// OTLP instruments. They are created on the global meter provider, which forwards to the
// exporter installed by observability.Setup, or drops the data when none is installed.
var (
	meter = otel.Meter("flow-api")

	otelOperations, _ = meter.Int64Counter("flow_api.operations",
		metric.WithDescription("Flow operations executed"))
	otelTurns, _ = meter.Int64Counter("flow_api.turns",
		metric.WithDescription("Interpreter turns by final state"))
)

// RecordOperation records an executed operation.
func RecordOperation(ctx context.Context, operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	if otelOperations != nil {
		otelOperations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
	}
}

// RecordTurn records an interpreter turn that reached a final state.
func RecordTurn(ctx context.Context, state string) {
	TurnsTotal.WithLabelValues(state).Inc()
	if otelTurns != nil {
		otelTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
	}
}

// RecordCacheLookup records a cache lookup result (hit, miss, expired, rejected).
func RecordCacheLookup(cache, result string) {
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordCacheEviction records removed cache entries.
func RecordCacheEviction(cache, reason string, count int) {
	if count <= 0 {
		return
	}
	CacheEvictionsTotal.WithLabelValues(cache, reason).Add(float64(count))
}

// RecordProviderError records a classified provider failure.
func RecordProviderError(kind string) {
	ProviderErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordRequest records a completed HTTP request.
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}
