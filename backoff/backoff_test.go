package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	s := Fixed(5 * time.Second)
	assert.Equal(t, 5*time.Second, s(1))
	assert.Equal(t, 5*time.Second, s(10))
}

func TestLinearCapsAtMax(t *testing.T) {
	s := Linear(time.Second, 3*time.Second)
	assert.Equal(t, time.Second, s(1))
	assert.Equal(t, 2*time.Second, s(2))
	assert.Equal(t, 3*time.Second, s(3))
	assert.Equal(t, 3*time.Second, s(10))
}

func TestExponentialCapsAtMax(t *testing.T) {
	s := Exponential(time.Second, 10*time.Second)
	assert.Equal(t, time.Second, s(1))
	assert.Equal(t, 2*time.Second, s(2))
	assert.Equal(t, 4*time.Second, s(3))
	assert.Equal(t, 10*time.Second, s(100))
}

func TestExponentialJitterWithinBounds(t *testing.T) {
	s := ExponentialJitter(time.Second, 100*time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		d := s(attempt)
		base := time.Duration(float64(time.Second) * pow2(attempt-1))
		assert.GreaterOrEqual(t, d, base/2)
		assert.LessOrEqual(t, d, base)
	}
}

func pow2(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}

func TestCustom(t *testing.T) {
	s := Custom(func(attempt int) time.Duration { return time.Duration(attempt) * time.Millisecond })
	assert.Equal(t, 3*time.Millisecond, s(3))
}
