package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.pipelinekit.dev/flowkit/internal/clock"
)

func TestUnknownBeforeMinRequests(t *testing.T) {
	tr := New(Config{MinRequests: 5})
	tr.RecordSuccess("svc", time.Millisecond)
	tr.RecordSuccess("svc", time.Millisecond)

	snap := tr.Health("svc")
	assert.Equal(t, Unknown, snap.State)
}

func TestHealthyAfterEnoughSuccesses(t *testing.T) {
	tr := New(Config{MinRequests: 3, SuccessRateThreshold: 0.9})
	for i := 0; i < 5; i++ {
		tr.RecordSuccess("svc", time.Millisecond)
	}
	snap := tr.Health("svc")
	assert.Equal(t, Healthy, snap.State)
	assert.Equal(t, float64(1), snap.SuccessRate)
}

func TestUnhealthyOnConsecutiveFailures(t *testing.T) {
	tr := New(Config{MinRequests: 1, FailureThreshold: 3})
	tr.RecordSuccess("svc", time.Millisecond)
	tr.RecordFailure("svc", time.Millisecond)
	tr.RecordFailure("svc", time.Millisecond)
	tr.RecordFailure("svc", time.Millisecond)

	snap := tr.Health("svc")
	assert.Equal(t, Unhealthy, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
}

func TestDegradedOnLowSuccessRate(t *testing.T) {
	tr := New(Config{MinRequests: 4, SuccessRateThreshold: 0.9, FailureThreshold: 100})
	tr.RecordSuccess("svc", time.Millisecond)
	tr.RecordFailure("svc", time.Millisecond)
	tr.RecordSuccess("svc", time.Millisecond)
	tr.RecordSuccess("svc", time.Millisecond)

	snap := tr.Health("svc")
	assert.Equal(t, Degraded, snap.State)
}

func TestDegradedOnSlowResponses(t *testing.T) {
	tr := New(Config{MinRequests: 2, ResponseTimeThreshold: 10 * time.Millisecond, FailureThreshold: 100})
	tr.RecordSuccess("svc", 50*time.Millisecond)
	tr.RecordSuccess("svc", 60*time.Millisecond)

	snap := tr.Health("svc")
	assert.Equal(t, Degraded, snap.State)
}

func TestRecoveryRequiresConsecutiveSuccessThreshold(t *testing.T) {
	fc := clock.NewFake()
	tr := New(Config{MinRequests: 1, FailureThreshold: 1, SuccessThreshold: 2, Clock: fc})
	tr.RecordFailure("svc", time.Millisecond)
	assert.Equal(t, Unhealthy, tr.Health("svc").State)

	tr.RecordSuccess("svc", time.Millisecond)
	assert.Equal(t, Unhealthy, tr.Health("svc").State, "one success is not enough to recover")

	tr.RecordSuccess("svc", time.Millisecond)
	assert.Equal(t, Degraded, tr.Health("svc").State,
		"recovered out of Unhealthy; 2 of 3 successes is below the default 0.9 success-rate threshold")
}

func TestActiveCheckOverridesPassiveWindow(t *testing.T) {
	tr := New(Config{MinRequests: 1})
	tr.RecordSuccess("svc", time.Millisecond)
	assert.Equal(t, Healthy, tr.Health("svc").State)

	tr.RecordActiveCheck("svc", false)
	assert.Equal(t, Unhealthy, tr.Health("svc").State)
}

type fakeCheck struct {
	key string
	err error
}

func (f fakeCheck) Key() string                        { return f.key }
func (f fakeCheck) Probe(ctx context.Context) error { return f.err }

func TestCheckRunnerFeedsFailures(t *testing.T) {
	tr := New(Config{MinRequests: 1})
	runner := NewCheckRunner(tr, time.Hour, time.Second, nil)
	runner.Register(fakeCheck{key: "svc", err: errors.New("down")})

	runner.pollAll()

	assert.Equal(t, Unhealthy, tr.Health("svc").State)
}

func TestCheckRunnerStartStop(t *testing.T) {
	tr := New(Config{MinRequests: 1})
	runner := NewCheckRunner(tr, 5*time.Millisecond, time.Second, nil)
	runner.Register(fakeCheck{key: "svc", err: nil})
	runner.Start()
	time.Sleep(20 * time.Millisecond)
	runner.Stop()

	assert.Equal(t, Healthy, tr.Health("svc").State)
}
