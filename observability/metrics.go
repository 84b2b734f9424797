package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters and gauges flowkit's own middlewares emit
// into, so every admission/resilience decision is visible on a Registry's
// scrape endpoint without each middleware hand-rolling its own metric
// names.
type Metrics struct {
	Admitted *prometheus.CounterVec // labels: middleware
	Rejected *prometheus.CounterVec // labels: middleware, reason
	Queued   *prometheus.GaugeVec   // labels: middleware

	CircuitState *prometheus.GaugeVec   // labels: commandType; value is circuitbreaker.State
	RetryAttempt *prometheus.CounterVec // labels: commandType
	HealthState  *prometheus.GaugeVec   // labels: serviceKey; value is health.State
}

// NewMetrics registers the standard metric set on reg.
func NewMetrics(reg *Registry) (*Metrics, error) {
	admitted, err := reg.CounterVector("pipeline_admitted_total", "commands admitted by a middleware", []string{"middleware"})
	if err != nil {
		return nil, err
	}
	rejected, err := reg.CounterVector("pipeline_rejected_total", "commands rejected by a middleware", []string{"middleware", "reason"})
	if err != nil {
		return nil, err
	}
	queued, err := reg.GaugeVector("pipeline_queued", "commands currently queued at a middleware", []string{"middleware"})
	if err != nil {
		return nil, err
	}
	circuitState, err := reg.GaugeVector("circuit_breaker_state", "current circuit breaker state (0=closed,1=open,2=half_open)", []string{"commandType"})
	if err != nil {
		return nil, err
	}
	retryAttempt, err := reg.CounterVector("retry_attempts_total", "retry attempts issued", []string{"commandType"})
	if err != nil {
		return nil, err
	}
	healthState, err := reg.GaugeVector("health_state", "current health tracker state (0=unknown,1=healthy,2=degraded,3=unhealthy)", []string{"serviceKey"})
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Admitted:     admitted,
		Rejected:     rejected,
		Queued:       queued,
		CircuitState: circuitState,
		RetryAttempt: retryAttempt,
		HealthState:  healthState,
	}, nil
}
