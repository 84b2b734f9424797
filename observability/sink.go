package observability

import (
	"go.uber.org/zap"

	"go.pipelinekit.dev/flowkit/flowcontext"
)

// EventSink adapts a Metrics bundle into a flowcontext.EventSink, so every
// event a resilience middleware emits (flowmiddleware's
// middleware.circuit_open, middleware.bulkhead_rejected,
// resilience.retry.attempt, and the rest of spec §6's table) lands as a
// Registry counter/gauge update rather than only ever reaching a test's
// in-memory sink. Events this sink does not recognize are logged at debug
// level rather than dropped silently, so a new middleware event can be
// noticed before it gets a dedicated metric.
type EventSink struct {
	metrics *Metrics
	logger  *zap.Logger
}

// NewEventSink constructs an EventSink forwarding to m. A nil logger is
// replaced with zap.NewNop().
func NewEventSink(m *Metrics, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{metrics: m, logger: logger}
}

var _ flowcontext.EventSink = (*EventSink)(nil)

// Emit implements flowcontext.EventSink.
func (s *EventSink) Emit(name string, properties map[string]interface{}) {
	switch name {
	case "middleware.rate_limit_rejected":
		s.metrics.Rejected.WithLabelValues("rateLimit", "rate_limit").Inc()

	case "middleware.circuit_open":
		s.metrics.Rejected.WithLabelValues("circuitBreaker", "circuit_open").Inc()

	case "middleware.circuit_breaker_state_changed":
		commandType, _ := properties["commandType"].(string)
		to, _ := properties["to"].(string)
		s.metrics.CircuitState.WithLabelValues(commandType).Set(circuitStateValue(to))

	case "middleware.bulkhead_rejected":
		s.metrics.Rejected.WithLabelValues("bulkhead", "bulkhead_rejected").Inc()

	case "middleware.partitioned_bulkhead_execution":
		s.metrics.Admitted.WithLabelValues("bulkhead").Inc()
		if queued, _ := properties["wasQueued"].(bool); queued {
			s.metrics.Queued.WithLabelValues("bulkhead").Inc()
		}

	case "middleware.near_timeout", "middleware.timeout_grace_period":
		s.logger.Debug("timeout middleware event", zap.String("event", name), zap.Any("properties", properties))

	case "resilience.retry.attempt":
		commandType, _ := properties["commandType"].(string)
		s.metrics.RetryAttempt.WithLabelValues(commandType).Inc()

	case "resilience.retry.failed":
		s.logger.Debug("retry attempt failed", zap.Any("properties", properties))

	case "resilience.retry.exhausted":
		s.metrics.Rejected.WithLabelValues("retry", "exhausted").Inc()

	case "middleware.health_check_execution":
		serviceKey, _ := properties["commandType"].(string)
		state, _ := properties["state"].(string)
		s.metrics.HealthState.WithLabelValues(serviceKey).Set(healthStateValue(state))

	default:
		s.logger.Debug("unrecognized pipeline event", zap.String("event", name), zap.Any("properties", properties))
	}
}

// circuitStateValue mirrors circuitbreaker.State's iota order (closed=0,
// open=1, half_open=2) without importing the circuitbreaker package, since
// CircuitBreakerMiddleware only ever hands this sink the already-rendered
// State.String() form.
func circuitStateValue(s string) float64 {
	switch s {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// healthStateValue mirrors health.State's iota order (unknown=0, healthy=1,
// degraded=2, unhealthy=3).
func healthStateValue(s string) float64 {
	switch s {
	case "healthy":
		return 1
	case "degraded":
		return 2
	case "unhealthy":
		return 3
	default:
		return 0
	}
}
