// Package backoff provides the delay strategies spec §4.7 names as a closed
// list, generalizing the teacher's internal/backoff.Strategy/Backoff split
// (a Strategy builds a per-attempt Backoff) to Fixed, Linear, Exponential,
// ExponentialJitter, and Custom.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed: the delay before
// the first retry is Strategy(1)).
type Strategy func(attempt int) time.Duration

// Fixed always waits d.
func Fixed(d time.Duration) Strategy {
	return func(attempt int) time.Duration { return d }
}

// Linear waits min(attempt*base, max).
func Linear(base, max time.Duration) Strategy {
	return func(attempt int) time.Duration {
		d := base * time.Duration(attempt)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Exponential waits min(base*2^(attempt-1), max).
func Exponential(base, max time.Duration) Strategy {
	return func(attempt int) time.Duration {
		d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// ExponentialJitter waits min(base*2^(attempt-1)*U(0.5,1.0), max), the AWS
// "full jitter" family the teacher's internal/backoff.Exponential
// implements, narrowed here to the spec's closed U(0.5, 1.0) range.
func ExponentialJitter(base, max time.Duration) Strategy {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(attempt int) time.Duration {
		d := float64(base) * math.Pow(2, float64(attempt-1))
		jitter := 0.5 + rnd.Float64()*0.5
		result := time.Duration(d * jitter)
		if max > 0 && result > max {
			return max
		}
		return result
	}
}

// Custom wraps an arbitrary delay function as a Strategy.
func Custom(fn func(attempt int) time.Duration) Strategy {
	return Strategy(fn)
}
