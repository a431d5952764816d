package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the SOOP chat collector.
//
// Naming convention: namespace_subsystem_name
// - namespace: soop_agent (application-level grouping)
// - subsystem: socket, events, keepalive, resolver, bus, ops (feature-level grouping)
// - name: specific metric (sessions_active, frames_total, etc.)
//
// Metric Types:
// - Gauge: Current state (sessions, breaker state)
// - Counter: Cumulative events (frames decoded, pings sent, errors)
// - Histogram: Latency distributions (resolve time, frame handling time)

var (
	// ActiveChatSessions tracks the current number of live chat sessions (Gauge - current state)
	ActiveChatSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "soop_agent",
		Subsystem: "socket",
		Name:      "sessions_active",
		Help:      "Current number of active chat sessions",
	})

	// FramesReceived tracks the total number of inbound frames by decoded kind (CounterVec - cumulative)
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "socket",
		Name:      "frames_total",
		Help:      "Total inbound frames by decoded kind",
	}, []string{"kind"})

	// FrameFormatErrors tracks inbound packets dropped for violating the frame grammar (Counter - cumulative)
	FrameFormatErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "socket",
		Name:      "frame_errors_total",
		Help:      "Total inbound packets dropped as malformed",
	})

	// FrameProcessingDuration tracks the time spent handling an inbound frame (HistogramVec - latency distribution)
	FrameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "soop_agent",
		Subsystem: "socket",
		Name:      "frame_processing_seconds",
		Help:      "Time spent handling inbound frames",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"kind"})

	// EventsDispatched tracks handler outcomes per event kind (CounterVec - cumulative)
	// status is "ok" for a completed dispatch and "handler_fault" for a recovered panic.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "events",
		Name:      "dispatched_total",
		Help:      "Total events dispatched to subscribers",
	}, []string{"kind", "status"})

	// PingsSent tracks keepalive packets written to the socket (Counter - cumulative)
	PingsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "keepalive",
		Name:      "pings_sent_total",
		Help:      "Total keepalive pings sent",
	})

	// PingFailures tracks keepalive writes that failed and ended the session (Counter - cumulative)
	PingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "keepalive",
		Name:      "ping_failures_total",
		Help:      "Total keepalive ping write failures",
	})

	// ResolveRequests tracks live detail lookups by outcome (CounterVec - cumulative)
	// status is one of "ok", "not_live", "error".
	ResolveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "resolver",
		Name:      "requests_total",
		Help:      "Total live detail resolve attempts",
	}, []string{"status"})

	// ResolveDuration tracks live detail lookup latency (Histogram - latency distribution)
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "soop_agent",
		Subsystem: "resolver",
		Name:      "duration_seconds",
		Help:      "Live detail resolve latency",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// RedisOperationsTotal tracks fan-out bus operations by outcome (CounterVec - cumulative)
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "bus",
		Name:      "redis_operations_total",
		Help:      "Total Redis operations by outcome",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks fan-out bus operation latency (HistogramVec - latency distribution)
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "soop_agent",
		Subsystem: "bus",
		Name:      "redis_operation_seconds",
		Help:      "Redis operation latency",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	// CircuitBreakerState exposes the breaker state per downstream (GaugeVec - current state)
	// 0 = closed, 1 = half-open, 2 = open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "soop_agent",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts operations rejected or failed through the breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "bus",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total circuit breaker failures",
	}, []string{"service"})

	// RateLimitRequests counts requests checked by the ops rate limiter (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "ops",
		Name:      "rate_limit_requests_total",
		Help:      "Total requests evaluated by the rate limiter",
	}, []string{"endpoint"})

	// RateLimitExceeded counts requests rejected by the ops rate limiter (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soop_agent",
		Subsystem: "ops",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"endpoint", "limit_type"})
)

func IncSession() {
	ActiveChatSessions.Inc()
}

func DecSession() {
	ActiveChatSessions.Dec()
}
