// Package metrics exposes Prometheus instrumentation for the analytics console:
// backend request latency, response cache efficiency, flood protection drops,
// poll loops, circuit breaker state and websocket fan-out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend transport
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storykeep_backend_request_duration_seconds",
			Help:    "Duration of requests to the TractStack backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storykeep_circuit_breaker_state",
			Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storykeep_circuit_breaker_transitions_total",
			Help: "Backend circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Fetch service
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storykeep_fetch_requests_total",
			Help: "Analytics fetches by terminal outcome",
		},
		[]string{"outcome"}, // complete, error, loading, superseded, flooded, cached
	)

	ResponseCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_response_cache_hits_total",
			Help: "Analytics responses served from the short-lived response cache",
		},
	)

	ResponseCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_response_cache_misses_total",
			Help: "Analytics fetches that missed the response cache",
		},
	)

	ResponseCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_response_cache_evictions_total",
			Help: "Expired response cache entries swept on write",
		},
	)

	FloodBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_flood_blocks_total",
			Help: "Times flood protection entered its cooldown",
		},
	)

	PollIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_poll_iterations_total",
			Help: "Re-fetches scheduled because the backend was still computing",
		},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storykeep_operation_duration_seconds",
			Help:    "Duration of tracked console operations",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation", "success"},
	)

	// Dashboards and push
	ActiveDashboards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storykeep_active_dashboards",
			Help: "Open dashboard sessions",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storykeep_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	WebsocketMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storykeep_websocket_messages_dropped_total",
			Help: "Updates dropped because a client send buffer was full",
		},
	)

	ConsoleRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storykeep_console_rate_limited_total",
			Help: "Console API requests rejected by the rate limiter",
		},
		[]string{"path"},
	)
)
