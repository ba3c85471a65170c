package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff never gives up on elapsed time; callers bound it by attempts.
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier, jitter float64) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.RandomizationFactor = jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// CalculateBackoffDuration returns the un-jittered delay that follows the
// given attempt (1-based): initial * multiplier^(attempt-1), capped at maxInterval.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt-1))
	if maxInterval > 0 && duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
