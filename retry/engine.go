// Package retry implements the attempt/backoff/cancellation loop from spec
// §4.7 on top of backoff.Strategy, following the teacher's convention of
// cooperative-cancellation sleeps (select on a timer and ctx.Done) used
// throughout peer/abstractlist and internal/backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"go.pipelinekit.dev/flowkit/backoff"
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/pipelineerrors"
)

// Operation is the unit of work retried by an Engine.
type Operation func(ctx context.Context) (interface{}, error)

// ShouldRetry decides, given an error, whether another attempt should be
// made. It is never consulted for context.Canceled.
type ShouldRetry func(err error) bool

// Config configures an Engine.
type Config struct {
	MaxAttempts  int           // total attempts, including the first; <=1 means no retries
	MaxRetryTime time.Duration // bounds total time spent retrying; zero means unbounded
	Strategy     backoff.Strategy
	ShouldRetry  ShouldRetry
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Strategy == nil {
		c.Strategy = backoff.Fixed(100 * time.Millisecond)
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = DefaultRetryable
	}
}

// Retryable tags an error as a class eligible for retry by default. Command
// implementations that want their own errors retried without writing a
// ShouldRetry predicate can wrap them with one of these.
type Retryable struct {
	Err  error
	Kind string // "timeout", "networkError", "temporaryFailure"
}

func (r *Retryable) Error() string { return r.Err.Error() }
func (r *Retryable) Unwrap() error { return r.Err }

// DefaultRetryable implements spec §4.7's default retryability: timeout,
// networkError, and temporaryFailure classes, identified either by a
// *Retryable wrapper or a *pipelineerrors.Error with CodeTimeout.
// Cancellation is never retried regardless of predicate.
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r *Retryable
	if errors.As(err, &r) {
		switch r.Kind {
		case "timeout", "networkError", "temporaryFailure":
			return true
		}
		return false
	}
	var pe *pipelineerrors.Error
	if errors.As(err, &pe) {
		return pe.Code == pipelineerrors.CodeTimeout
	}
	return false
}

// Engine runs an Operation with retry/backoff per Config.
type Engine struct {
	cfg Config
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{cfg: cfg}
}

// Run executes op, retrying on eligible errors up to MaxAttempts times
// (1 initial attempt plus up to MaxAttempts-1 retries) or until
// MaxRetryTime elapses, whichever comes first. commandType and an optional
// flowcontext.Context are used only to emit retry events; fctx may be nil.
func (e *Engine) Run(ctx context.Context, commandType string, fctx *flowcontext.Context, op Operation) (interface{}, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emit(fctx, "resilience.retry.attempt", commandType, attempt, time.Since(start), nil)

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		emit(fctx, "resilience.retry.failed", commandType, attempt, time.Since(start), err)

		if attempt >= e.cfg.MaxAttempts || !e.cfg.ShouldRetry(err) {
			emit(fctx, "resilience.retry.exhausted", commandType, attempt, time.Since(start), err)
			return nil, pipelineerrors.Newf(pipelineerrors.CodeRetryExhausted, commandType,
				"retry exhausted after %d attempts: %v", attempt, err).WithCause(err).
				WithInfo("attempts", attempt)
		}

		delay := e.cfg.Strategy(attempt)
		if e.cfg.MaxRetryTime > 0 && time.Since(start)+delay > e.cfg.MaxRetryTime {
			emit(fctx, "resilience.retry.exhausted", commandType, attempt, time.Since(start), err)
			return nil, pipelineerrors.Newf(pipelineerrors.CodeRetryExhausted, commandType,
				"retry time budget exceeded after %d attempts: %v", attempt, err).WithCause(err).
				WithInfo("attempts", attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	emit(fctx, "resilience.retry.exhausted", commandType, e.cfg.MaxAttempts, time.Since(start), lastErr)
	return nil, pipelineerrors.Newf(pipelineerrors.CodeRetryExhausted, commandType,
		"retry exhausted: %v", lastErr).WithCause(lastErr)
}

// emit reports a retry lifecycle event. err is nil only for
// resilience.retry.attempt, which fires before the operation runs.
func emit(fctx *flowcontext.Context, event, commandType string, attempt int, elapsed time.Duration, err error) {
	if fctx == nil {
		return
	}
	props := map[string]interface{}{
		"middleware":  "retry",
		"commandType": commandType,
		"attempt":     attempt,
		"elapsed":     elapsed,
	}
	if err != nil {
		props["error"] = err.Error()
	}
	fctx.Emit(event, props)
}
