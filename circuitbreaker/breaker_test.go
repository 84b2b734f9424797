package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pipelinekit.dev/flowkit/internal/clock"
)

func TestScenarioFromSpec(t *testing.T) {
	fc := clock.NewFake()
	var transitions []State
	b := New(Config{
		FailureThreshold:         3,
		RecoveryTimeout:          100 * time.Millisecond,
		HalfOpenSuccessThreshold: 2,
		Clock:                    fc,
		OnStateChange: func(_, to State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < 3; i++ {
		perm, ok := b.AllowRequest()
		require.True(t, ok)
		perm.RecordFailure()
	}
	assert.Equal(t, Open, b.State())

	fc.Add(50 * time.Millisecond)
	_, ok := b.AllowRequest()
	assert.False(t, ok, "request at 50ms should be denied while open")

	fc.Add(70 * time.Millisecond) // total 120ms > 100ms recovery timeout
	perm, ok := b.AllowRequest()
	require.True(t, ok, "probe at 120ms should be admitted")
	assert.Equal(t, HalfOpen, b.State())
	perm.RecordFailure()
	assert.Equal(t, Open, b.State())

	fc.Add(110 * time.Millisecond)
	perm, ok = b.AllowRequest()
	require.True(t, ok)
	perm.RecordSuccess()
	assert.Equal(t, HalfOpen, b.State())

	perm2, ok := b.AllowRequest()
	require.True(t, ok)
	perm2.RecordSuccess()
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []State{Open, HalfOpen, Open, HalfOpen, Closed}, transitions)
}

func TestHalfOpenOnlyOneProbeAtATime(t *testing.T) {
	fc := clock.NewFake()
	b := New(Config{
		FailureThreshold:         1,
		RecoveryTimeout:          10 * time.Millisecond,
		HalfOpenSuccessThreshold: 1,
		Clock:                    fc,
	})
	perm, _ := b.AllowRequest()
	perm.RecordFailure()
	assert.Equal(t, Open, b.State())

	fc.Add(20 * time.Millisecond)
	_, ok := b.AllowRequest()
	require.True(t, ok)

	_, ok = b.AllowRequest()
	assert.False(t, ok, "a second probe must not be admitted while one is in flight")
}

func TestDoubleConsumeIsNoop(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	perm, _ := b.AllowRequest()
	perm.RecordSuccess()
	perm.RecordFailure() // should be ignored; already consumed
	assert.Equal(t, Closed, b.State())
}
