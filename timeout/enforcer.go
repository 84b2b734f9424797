// Package timeout races an operation against a deadline, optionally
// extending it once with a grace period, modeled on the teacher's context
// deadline propagation (api/transport) and the select-on-context-and-channel
// idiom in peer/abstractlist.waitForPeerAddedEvent.
package timeout

import (
	"context"
	"time"

	"go.pipelinekit.dev/flowkit/pipelineerrors"
)

// Operation is the unit of work an Enforcer races against a timer. It must
// observe ctx cancellation cooperatively; the enforcer cannot forcibly stop
// a goroutine that ignores it.
type Operation func(ctx context.Context) (interface{}, error)

// Result wraps an Operation's outcome with enforcement metadata. Recovered
// is true only when the operation completed during a grace-period
// extension, letting a caller distinguish an on-time success from a
// graceful one without the generic Operation return value carrying extra
// flags (spec §9's open question resolution).
type Result struct {
	Value     interface{}
	Recovered bool
}

// Config configures timeout resolution for a single Enforcer invocation.
// Resolution order is Override > command-declared > type-keyed default >
// Default, per spec §4.6.
type Config struct {
	Override        time.Duration
	CommandDeclared time.Duration
	TypeDefaults    map[string]time.Duration
	Default         time.Duration
	Grace           time.Duration // zero disables the grace-period extension

	// NearTimeoutPercentage is the fraction of the resolved timeout at
	// which Hooks.OnNearTimeout fires, if set. Defaults to 0.8 when <= 0
	// or >= 1.
	NearTimeoutPercentage float64
}

// Resolve picks the effective timeout for a command of the given type.
func (c Config) Resolve(commandType string) time.Duration {
	if c.Override > 0 {
		return c.Override
	}
	if c.CommandDeclared > 0 {
		return c.CommandDeclared
	}
	if d, ok := c.TypeDefaults[commandType]; ok && d > 0 {
		return d
	}
	return c.Default
}

// Enforcer races operations against resolved timeouts.
type Enforcer struct {
	cfg Config
}

// New constructs an Enforcer.
func New(cfg Config) *Enforcer {
	if cfg.Default <= 0 {
		cfg.Default = 30 * time.Second
	}
	return &Enforcer{cfg: cfg}
}

type opOutcome struct {
	value interface{}
	err   error
}

// Hooks are optional per-call observation callbacks. They let a caller
// (typically a flowmiddleware.TimeoutMiddleware wrapping one request's
// flowcontext.Context) react to near-timeout and grace-period events
// without the timeout package itself depending on flowcontext, the same
// separation circuitbreaker.Config.OnStateChange uses at the instance
// level. A nil field is simply never called.
type Hooks struct {
	// OnNearTimeout fires once, from within Run, if elapsed reaches
	// NearTimeoutPercentage of the resolved timeout before the operation
	// completes.
	OnNearTimeout func(elapsed, timeout time.Duration)
	// OnGracePeriod fires once, from within Run, when the initial timeout
	// expires and a grace extension begins.
	OnGracePeriod func(timeout, grace time.Duration)
}

// defaultNearTimeoutPercentage is the default fraction of the resolved timeout at
// which Hooks.OnNearTimeout fires.
const defaultNearTimeoutPercentage = 0.8

// Run executes op against the timeout resolved for commandType. If a grace
// period is configured and the initial timeout fires, op is given an
// additional Grace duration to finish before failing with
// CodeTimeout/"grace period expired". hooks is optional; pass none to skip
// near-timeout/grace-period observation entirely.
func (e *Enforcer) Run(ctx context.Context, commandType string, op Operation, hooks ...Hooks) (Result, error) {
	var h Hooks
	if len(hooks) > 0 {
		h = hooks[0]
	}

	timeout := e.cfg.Resolve(commandType)

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan opOutcome, 1)
	go func() {
		v, err := op(opCtx)
		done <- opOutcome{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var nearC <-chan time.Time
	var nearElapsed time.Duration
	if h.OnNearTimeout != nil {
		pct := e.cfg.NearTimeoutPercentage
		if pct <= 0 || pct >= 1 {
			pct = defaultNearTimeoutPercentage
		}
		nearElapsed = time.Duration(float64(timeout) * pct)
		nearTimer := time.NewTimer(nearElapsed)
		defer nearTimer.Stop()
		nearC = nearTimer.C
	}

	select {
	case out := <-done:
		return Result{Value: out.value}, out.err
	case <-ctx.Done():
		cancel()
		return Result{}, ctx.Err()
	case <-nearC:
		h.OnNearTimeout(nearElapsed, timeout)
		select {
		case out := <-done:
			return Result{Value: out.value}, out.err
		case <-ctx.Done():
			cancel()
			return Result{}, ctx.Err()
		case <-timer.C:
			// fall through to grace handling below
		}
	case <-timer.C:
	}

	if e.cfg.Grace <= 0 {
		cancel()
		return Result{}, exceededError(commandType, timeout)
	}

	if h.OnGracePeriod != nil {
		h.OnGracePeriod(timeout, e.cfg.Grace)
	}

	grace := time.NewTimer(e.cfg.Grace)
	defer grace.Stop()

	select {
	case out := <-done:
		return Result{Value: out.value, Recovered: true}, out.err
	case <-ctx.Done():
		cancel()
		return Result{}, ctx.Err()
	case <-grace.C:
		cancel()
		return Result{}, gracePeriodExpiredError(commandType, timeout, e.cfg.Grace)
	}
}

func exceededError(commandType string, duration time.Duration) error {
	return pipelineerrors.Newf(pipelineerrors.CodeTimeout, commandType, "operation exceeded timeout of %s", duration).
		WithInfo("duration", duration)
}

func gracePeriodExpiredError(commandType string, timeout, grace time.Duration) error {
	total := timeout + grace
	return pipelineerrors.Newf(pipelineerrors.CodeTimeout, commandType, "grace period expired after %s (timeout=%s, grace=%s)", total, timeout, grace).
		WithInfo("timeout", timeout).
		WithInfo("grace", grace).
		WithInfo("total", total)
}
