// Package circuitbreaker implements the Closed/Open/HalfOpen state machine
// from spec §4.3, modeled on the teacher's internal/sync.LifecycleOnce: a
// state tag guarded by a mutex around every transition so reads
// never race a transition in progress, and a single probe permission is
// handed out at a time while HalfOpen.
package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"go.pipelinekit.dev/flowkit/pipelineerrors"
)

// Clock is the minimum interface a circuit breaker needs for time, letting
// tests substitute internal/clock.FakeClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// State is the circuit breaker's current disposition.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	FailureThreshold         int
	RecoveryTimeout          time.Duration
	ResetTimeout             time.Duration // Closed-state idle counter reset
	HalfOpenSuccessThreshold int
	Clock                    Clock
	Logger                   *zap.Logger
	// OnStateChange is invoked, if non-nil, after a transition commits.
	// Middlewares use this to emit middleware.circuit_breaker_state_changed.
	OnStateChange func(from, to State)
}

// Breaker is a single circuit breaker instance, usually one per downstream
// service key.
type Breaker struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failures          int
	lastFailureAt     time.Time
	openUntil         time.Time
	halfOpenSuccesses int
	probeInFlight     bool
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		cfg.HalfOpenSuccessThreshold = 1
	}
	c := cfg.Clock
	if c == nil {
		c = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cfg: cfg, clock: c, logger: logger, state: Closed}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Permission is returned by AllowRequest when a request may proceed. The
// caller must report exactly one of RecordSuccess or RecordFailure using
// it, per spec §4.3's "strictly consumed by exactly one subsequent call".
type Permission struct {
	b        *Breaker
	isProbe  bool
	consumed bool
}

// AllowRequest decides whether a new call may proceed. It returns
// (permission, true) if allowed, or (zero, false) if the breaker is Open
// and the recovery timeout has not yet elapsed.
func (b *Breaker) AllowRequest() (Permission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	switch b.state {
	case Closed:
		if !b.lastFailureAt.IsZero() && b.cfg.ResetTimeout > 0 && now.Sub(b.lastFailureAt) > b.cfg.ResetTimeout {
			b.failures = 0
		}
		return Permission{b: b}, true

	case Open:
		if now.Before(b.openUntil) {
			return Permission{}, false
		}
		b.transition(HalfOpen)
		b.halfOpenSuccesses = 0
		b.probeInFlight = true
		return Permission{b: b, isProbe: true}, true

	case HalfOpen:
		if b.probeInFlight {
			return Permission{}, false
		}
		b.probeInFlight = true
		return Permission{b: b, isProbe: true}, true

	default:
		return Permission{}, false
	}
}

// RecordSuccess reports that the call guarded by p succeeded.
func (p *Permission) RecordSuccess() {
	if p.b == nil || p.consumed {
		return
	}
	p.consumed = true
	b := p.b
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessThreshold {
			b.transition(Closed)
			b.failures = 0
			b.halfOpenSuccesses = 0
		}
	case Closed:
		b.failures = 0
	}
}

// RecordFailure reports that the call guarded by p failed.
func (p *Permission) RecordFailure() {
	if p.b == nil || p.consumed {
		return
	}
	p.consumed = true
	b := p.b
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.lastFailureAt = now

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openUntil = now.Add(b.cfg.RecoveryTimeout)
			b.transition(Open)
		}
	case HalfOpen:
		b.probeInFlight = false
		b.openUntil = now.Add(b.cfg.RecoveryTimeout)
		b.transition(Open)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
	b.logger.Debug("circuit breaker state changed",
		zap.Stringer("from", from), zap.Stringer("to", to))
}

// AdmissionError builds the pipeline error for a denied AllowRequest.
func AdmissionError(commandType string) error {
	return pipelineerrors.Newf(pipelineerrors.CodeCircuitBreakerOpen, commandType, "circuit breaker open")
}
