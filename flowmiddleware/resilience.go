package flowmiddleware

import (
	"context"
	"time"

	"go.pipelinekit.dev/flowkit/bulkhead"
	"go.pipelinekit.dev/flowkit/circuitbreaker"
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/health"
	"go.pipelinekit.dev/flowkit/pipelineerrors"
	"go.pipelinekit.dev/flowkit/ratelimit"
	"go.pipelinekit.dev/flowkit/retry"
	"go.pipelinekit.dev/flowkit/timeout"
)

// RateLimitMiddleware admits or rejects a command against a ratelimit.Scoped
// limiter before anything downstream runs, per spec §4.8's "first stage"
// placement in the composed chain.
type RateLimitMiddleware struct {
	CommandType string
	Limiter     *ratelimit.Scoped
}

func (m *RateLimitMiddleware) Priority() Priority { return RateLimit }

func (m *RateLimitMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	decision := m.Limiter.Allow(command)
	if !decision.Allowed {
		ctx.Emit("middleware.rate_limit_rejected", map[string]interface{}{
			"middleware":  "rateLimit",
			"commandType": m.CommandType,
			"remaining":   decision.Remaining,
			"resetAt":     decision.ResetAt,
		})
		return nil, pipelineerrors.Newf(pipelineerrors.CodeRateLimit, m.CommandType, "rate limit exceeded").
			WithInfo("resetAt", decision.ResetAt)
	}
	return next(ctx, command)
}

// CircuitBreakerMiddleware guards a call with a circuitbreaker.Breaker,
// translating AllowRequest/RecordSuccess/RecordFailure into the chain's
// call/next/error shape and emitting spec §6's circuit breaker events.
type CircuitBreakerMiddleware struct {
	CommandType string
	Breaker     *circuitbreaker.Breaker
}

func (m *CircuitBreakerMiddleware) Priority() Priority { return Resilience }

func (m *CircuitBreakerMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	before := m.Breaker.State()

	perm, ok := m.Breaker.AllowRequest()
	m.emitStateChange(ctx, before)
	if !ok {
		ctx.Emit("middleware.circuit_open", map[string]interface{}{
			"middleware":  "circuitBreaker",
			"commandType": m.CommandType,
		})
		return nil, circuitbreaker.AdmissionError(m.CommandType)
	}

	before = m.Breaker.State()
	result, err := next(ctx, command)
	if err != nil {
		perm.RecordFailure()
	} else {
		perm.RecordSuccess()
	}
	m.emitStateChange(ctx, before)
	return result, err
}

func (m *CircuitBreakerMiddleware) emitStateChange(ctx *flowcontext.Context, before circuitbreaker.State) {
	after := m.Breaker.State()
	if after == before {
		return
	}
	ctx.Emit("middleware.circuit_breaker_state_changed", map[string]interface{}{
		"middleware":  "circuitBreaker",
		"commandType": m.CommandType,
		"from":        before.String(),
		"to":          after.String(),
	})
}

// BulkheadAcquirer abstracts over bulkhead.Bulkhead and
// bulkhead.PartitionedBulkhead, whose Acquire signatures differ only in
// whether the caller's command participates in partition routing.
type BulkheadAcquirer interface {
	Acquire(ctx context.Context, command interface{}) (*bulkhead.Token, error)
}

// PlainBulkhead adapts a *bulkhead.Bulkhead (whose Acquire takes no command)
// to BulkheadAcquirer, ignoring the command argument.
type PlainBulkhead struct {
	*bulkhead.Bulkhead
}

func (p PlainBulkhead) Acquire(ctx context.Context, _ interface{}) (*bulkhead.Token, error) {
	return p.Bulkhead.Acquire(ctx)
}

// BulkheadMiddleware acquires a bulkhead permit for the duration of next,
// emitting spec §6's partitioned-execution and rejection events.
type BulkheadMiddleware struct {
	CommandType string
	Bulkhead    BulkheadAcquirer
}

func (m *BulkheadMiddleware) Priority() Priority { return Resilience }

func (m *BulkheadMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	tok, err := m.Bulkhead.Acquire(ctx.Std(), command)
	if err != nil {
		ctx.Emit("middleware.bulkhead_rejected", map[string]interface{}{
			"middleware":  "bulkhead",
			"commandType": m.CommandType,
			"error":       err.Error(),
		})
		return nil, err
	}
	defer tok.Release()

	ctx.Emit("middleware.partitioned_bulkhead_execution", map[string]interface{}{
		"middleware":   "bulkhead",
		"commandType":  m.CommandType,
		"partition":    tok.PartitionName(),
		"wasBorrowed":  tok.WasBorrowed(),
		"borrowedFrom": tok.BorrowedFrom(),
		"wasQueued":    tok.WasQueued(),
		"queueTime":    tok.QueueTime(),
	})

	return next(ctx, command)
}

// TimeoutMiddleware races next against a timeout.Enforcer, threading the
// enforcer's derived deadline context back through next via ctx.WithStd, and
// emitting spec §6's near-timeout and grace-period events.
type TimeoutMiddleware struct {
	CommandType string
	Enforcer    *timeout.Enforcer
}

func (m *TimeoutMiddleware) Priority() Priority { return Resilience }

func (m *TimeoutMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	hooks := timeout.Hooks{
		OnNearTimeout: func(elapsed, to time.Duration) {
			ctx.Emit("middleware.near_timeout", map[string]interface{}{
				"middleware":  "timeout",
				"commandType": m.CommandType,
				"elapsed":     elapsed,
				"timeout":     to,
			})
		},
		OnGracePeriod: func(to, grace time.Duration) {
			ctx.Emit("middleware.timeout_grace_period", map[string]interface{}{
				"middleware":  "timeout",
				"commandType": m.CommandType,
				"timeout":     to,
				"grace":       grace,
			})
		},
	}

	result, err := m.Enforcer.Run(ctx.Std(), m.CommandType, func(stdCtx context.Context) (interface{}, error) {
		return next(ctx.WithStd(stdCtx), command)
	}, hooks)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// RetryMiddleware wraps next in a retry.Engine, which already emits spec
// §6's resilience.retry.* events directly via the flowcontext.Context
// passed to Run. It satisfies Middleware so it can be driven standalone
// (direct Execute calls, as in its own tests), but it must not be handed to
// Compose alongside other middlewares: Compose's wrap guards every
// middleware's next against being called more than once per request, which
// a retrying stage violates by construction whenever it actually retries.
// flowconfig.CommandResilience.WrapHandler wires it correctly, around the
// terminal handler rather than as a link in the composed chain.
type RetryMiddleware struct {
	CommandType string
	Engine      *retry.Engine
}

func (m *RetryMiddleware) Priority() Priority { return Resilience }

func (m *RetryMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	return m.Engine.Run(ctx.Std(), m.CommandType, ctx, func(stdCtx context.Context) (interface{}, error) {
		return next(ctx.WithStd(stdCtx), command)
	})
}

// HealthMiddleware feeds every call's outcome and duration into a
// health.Tracker keyed by CommandType and emits spec §6's
// middleware.health_check_execution event with the resulting Snapshot.
type HealthMiddleware struct {
	CommandType string
	Tracker     *health.Tracker
}

func (m *HealthMiddleware) Priority() Priority { return Resilience }

func (m *HealthMiddleware) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	start := time.Now()
	result, err := next(ctx, command)
	duration := time.Since(start)

	if err != nil {
		m.Tracker.RecordFailure(m.CommandType, duration)
	} else {
		m.Tracker.RecordSuccess(m.CommandType, duration)
	}

	snap := m.Tracker.Health(m.CommandType)
	ctx.Emit("middleware.health_check_execution", map[string]interface{}{
		"middleware":  "health",
		"commandType": m.CommandType,
		"state":       snap.State.String(),
		"successRate": snap.SuccessRate,
		"avgDuration": snap.AvgDuration,
	})

	return result, err
}
