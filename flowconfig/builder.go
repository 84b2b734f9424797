package flowconfig

import (
	"fmt"

	"go.pipelinekit.dev/flowkit/backoff"
	"go.pipelinekit.dev/flowkit/bulkhead"
	"go.pipelinekit.dev/flowkit/circuitbreaker"
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/flowmiddleware"
	"go.pipelinekit.dev/flowkit/health"
	"go.pipelinekit.dev/flowkit/observability"
	"go.pipelinekit.dev/flowkit/pipeline"
	"go.pipelinekit.dev/flowkit/ratelimit"
	"go.pipelinekit.dev/flowkit/retry"
	"go.pipelinekit.dev/flowkit/timeout"
)

// CommandResilience bundles the live components a CommandPolicy resolved
// to. Any field may be nil when the policy omitted that concern.
type CommandResilience struct {
	Timeout   *timeout.Enforcer
	Retry     *retry.Engine
	Breaker   *circuitbreaker.Breaker
	RateLimit *ratelimit.Scoped
	Bulkhead  flowmiddleware.BulkheadAcquirer
	Health    *health.Tracker
}

// Middlewares adapts cr's live components into the composed chain order
// spec §4.9 prescribes: rate limit, then health, then circuit breaker, then
// bulkhead, then timeout. Retry is deliberately excluded here: flowmiddleware.Compose
// guards every middleware's "next" against being called more than once per
// request (see flowmiddleware.TestCallingNextTwicePanics), which a retrying
// stage must violate by construction. Retry instead wraps the terminal
// handler directly, via WrapHandler, one layer inside the composed chain
// rather than as one of its links. commandType is threaded through for
// error construction and event properties. A nil component is simply
// omitted.
func (cr *CommandResilience) Middlewares(commandType string) []flowmiddleware.Middleware {
	var out []flowmiddleware.Middleware
	if cr.RateLimit != nil {
		out = append(out, &flowmiddleware.RateLimitMiddleware{CommandType: commandType, Limiter: cr.RateLimit})
	}
	if cr.Health != nil {
		out = append(out, &flowmiddleware.HealthMiddleware{CommandType: commandType, Tracker: cr.Health})
	}
	if cr.Breaker != nil {
		out = append(out, &flowmiddleware.CircuitBreakerMiddleware{CommandType: commandType, Breaker: cr.Breaker})
	}
	if cr.Bulkhead != nil {
		out = append(out, &flowmiddleware.BulkheadMiddleware{CommandType: commandType, Bulkhead: cr.Bulkhead})
	}
	if cr.Timeout != nil {
		out = append(out, &flowmiddleware.TimeoutMiddleware{CommandType: commandType, Enforcer: cr.Timeout})
	}
	return out
}

// WrapHandler wraps handler with cr.Retry, if configured, using a
// flowmiddleware.RetryMiddleware directly rather than through Compose. If
// cr.Retry is nil, handler is returned unchanged.
func (cr *CommandResilience) WrapHandler(commandType string, handler flowmiddleware.Handler) flowmiddleware.Handler {
	if cr.Retry == nil {
		return handler
	}
	retryMW := &flowmiddleware.RetryMiddleware{CommandType: commandType, Engine: cr.Retry}
	return func(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
		return retryMW.Execute(ctx, command, handler)
	}
}

// Built is the live wiring produced from a Topology: one CommandResilience
// per configured command type, plus the shared partition table.
type Built struct {
	Commands   map[string]*CommandResilience
	Partitions *bulkhead.PartitionedBulkhead
	Health     *health.Tracker

	// metricsSink forwards every event a wired middleware emits to the
	// observability.Metrics passed to NewBuilder via WithMetrics. Nil if
	// the builder was constructed without one, in which case EventSink
	// returns extra unchanged (or flowcontext.NopEventSink if extra is
	// empty).
	metricsSink flowcontext.EventSink
}

// EventSink returns the flowcontext.EventSink callers should pass to
// flowcontext.WithEventSink for commands executed through this Built: it
// forwards to the observability.Metrics registered via WithMetrics (if any),
// fanned out alongside any caller-supplied extra sinks, so a
// flowconfig-wired pipeline reports admission/resilience decisions on the
// Registry's scrape endpoint without the caller wiring each middleware's
// events by hand.
func (built *Built) EventSink(extra ...flowcontext.EventSink) flowcontext.EventSink {
	sinks := extra
	if built.metricsSink != nil {
		sinks = append([]flowcontext.EventSink{built.metricsSink}, extra...)
	}
	if len(sinks) == 0 {
		return flowcontext.NopEventSink
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return flowcontext.MultiEventSink(sinks...)
}

// Middlewares returns the composed middleware chain for commandType, ready
// to pass to pipeline.New alongside the command's terminal handler (after
// wrapping it with WrapHandler). It returns nil if commandType has no
// policy in the built topology.
func (built *Built) Middlewares(commandType string) []flowmiddleware.Middleware {
	cr, ok := built.Commands[commandType]
	if !ok {
		return nil
	}
	return cr.Middlewares(commandType)
}

// Pipeline builds the full compiled pipeline.Pipeline for commandType: its
// terminal handler wrapped with retry (if configured), composed with the
// rate limit, health, circuit breaker, bulkhead, and timeout middlewares in spec
// §4.9 order. It returns handler composed with no middlewares if
// commandType has no policy in the built topology.
func (built *Built) Pipeline(commandType string, handler flowmiddleware.Handler) *pipeline.Pipeline {
	cr, ok := built.Commands[commandType]
	if !ok {
		return pipeline.New(handler)
	}
	return pipeline.New(cr.WrapHandler(commandType, handler), cr.Middlewares(commandType)...)
}

// Builder turns a decoded Topology into live flowkit components. Unlike
// yarpcconfig's TransportSpec/PeerChooserSpec registries (which resolve
// named plugins supplied by the caller), every middleware this builder
// wires is one of flowkit's own resilience packages; UserKeyFunc is the
// one extension point a YAML document cannot express on its own, since
// extracting a user id from an arbitrary command is application-specific.
type Builder struct {
	userKeyFunc func(command interface{}) string
	metrics     *observability.Metrics
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithUserKeyExtractor registers the function used to resolve a
// `rateLimit.scope: perUser` policy's partitioning key. Required only if
// the topology declares a perUser rate limit.
func WithUserKeyExtractor(fn func(command interface{}) string) BuilderOption {
	return func(b *Builder) { b.userKeyFunc = fn }
}

// WithMetrics registers an observability.Metrics bundle that every Built
// produced by this Builder forwards its middleware events to; see
// Built.EventSink.
func WithMetrics(m *observability.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build wires every command policy and partition declared in top into
// live components.
func (b *Builder) Build(top *Topology) (*Built, error) {
	out := &Built{Commands: make(map[string]*CommandResilience, len(top.Commands))}
	if b.metrics != nil {
		out.metricsSink = observability.NewEventSink(b.metrics, nil)
	}

	if len(top.Partitions) > 0 {
		specs := make([]bulkhead.PartitionSpec, len(top.Partitions))
		for i, p := range top.Partitions {
			specs[i] = bulkhead.PartitionSpec{
				Name:         p.Name,
				Capacity:     p.Capacity,
				QueueSize:    p.QueueSize,
				QueueTimeout: p.QueueTimeout,
			}
		}
		out.Partitions = bulkhead.NewPartitioned(bulkhead.PartitionedConfig{Partitions: specs})
	}

	if top.Health != nil {
		out.Health = health.New(health.Config{
			WindowSize:            top.Health.WindowSize,
			MinRequests:           top.Health.MinRequests,
			SuccessRateThreshold:  top.Health.SuccessRateThreshold,
			ResponseTimeThreshold: top.Health.ResponseTimeThreshold,
			FailureThreshold:      top.Health.FailureThreshold,
			SuccessThreshold:      top.Health.SuccessThreshold,
		})
	}

	for name, policy := range top.Commands {
		cr, err := b.buildCommand(policy, out.Partitions, out.Health)
		if err != nil {
			return nil, fmt.Errorf("flowconfig: command %q: %v", name, err)
		}
		out.Commands[name] = cr
	}

	return out, nil
}

func (b *Builder) buildCommand(policy CommandPolicy, partitions *bulkhead.PartitionedBulkhead, tracker *health.Tracker) (*CommandResilience, error) {
	cr := &CommandResilience{}

	if policy.Timeout != nil {
		cr.Timeout = timeout.New(timeout.Config{
			Default: policy.Timeout.Duration,
			Grace:   policy.Timeout.Grace,
		})
	}

	if policy.Retry != nil {
		strategy, err := buildBackoff(policy.Retry.Backoff)
		if err != nil {
			return nil, err
		}
		cr.Retry = retry.New(retry.Config{
			MaxAttempts:  policy.Retry.MaxAttempts,
			MaxRetryTime: policy.Retry.MaxRetryTime,
			Strategy:     strategy,
		})
	}

	if policy.CircuitBreaker != nil {
		cr.Breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:         policy.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:          policy.CircuitBreaker.RecoveryTimeout,
			ResetTimeout:             policy.CircuitBreaker.ResetTimeout,
			HalfOpenSuccessThreshold: policy.CircuitBreaker.HalfOpenSuccessThreshold,
		})
	}

	if policy.RateLimit != nil {
		scoped, err := b.buildRateLimit(*policy.RateLimit)
		if err != nil {
			return nil, err
		}
		cr.RateLimit = scoped
	}

	if policy.Bulkhead != nil && policy.Bulkhead.Enabled {
		if partitions == nil {
			return nil, fmt.Errorf("bulkhead enabled but topology declares no partitions")
		}
		cr.Bulkhead = partitions
	}

	if policy.Health != nil && policy.Health.Enabled {
		if tracker == nil {
			return nil, fmt.Errorf("health enabled but topology declares no health policy")
		}
		cr.Health = tracker
	}

	return cr, nil
}

func buildBackoff(p BackoffPolicy) (backoff.Strategy, error) {
	switch p.Kind {
	case "", "fixed":
		return backoff.Fixed(p.Base), nil
	case "linear":
		return backoff.Linear(p.Base, p.Max), nil
	case "exponential":
		return backoff.Exponential(p.Base, p.Max), nil
	case "exponentialJitter":
		return backoff.ExponentialJitter(p.Base, p.Max), nil
	default:
		return nil, fmt.Errorf("unknown backoff kind %q", p.Kind)
	}
}

func (b *Builder) buildRateLimit(p RateLimitPolicy) (*ratelimit.Scoped, error) {
	keyFunc, err := b.buildKeyFunc(p.Scope)
	if err != nil {
		return nil, err
	}

	factory, err := buildLimiterFactory(p)
	if err != nil {
		return nil, err
	}

	return ratelimit.NewScoped(keyFunc, factory), nil
}

func (b *Builder) buildKeyFunc(scope string) (ratelimit.KeyFunc, error) {
	switch scope {
	case "", "global":
		return ratelimit.Global(), nil
	case "perCommand":
		return ratelimit.PerCommand(func(command interface{}) string {
			return fmt.Sprintf("%T", command)
		}), nil
	case "perUser":
		if b.userKeyFunc == nil {
			return nil, fmt.Errorf("rateLimit.scope=perUser requires WithUserKeyExtractor")
		}
		return ratelimit.PerUser(b.userKeyFunc), nil
	default:
		return nil, fmt.Errorf("unknown rateLimit scope %q", scope)
	}
}

func buildLimiterFactory(p RateLimitPolicy) (func() ratelimit.Limiter, error) {
	switch p.Kind {
	case "", "tokenBucket":
		return func() ratelimit.Limiter {
			return ratelimit.NewTokenBucket(p.BurstCapacity, p.Rate, nil)
		}, nil
	case "slidingWindow":
		return func() ratelimit.Limiter {
			return ratelimit.NewSlidingWindow(p.Window, int(p.Rate), nil)
		}, nil
	case "fixedWindow":
		return func() ratelimit.Limiter {
			return ratelimit.NewFixedWindow(p.Window, int(p.Rate), nil)
		}, nil
	default:
		return nil, fmt.Errorf("unknown rateLimit kind %q (adaptive requires a LoadFn and cannot be built from YAML alone)", p.Kind)
	}
}
