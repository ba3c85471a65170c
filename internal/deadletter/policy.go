package deadletter

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"eventrouter/internal/config"
	"eventrouter/pkg/retry"
)

// Policy bounds redelivery of a failing (rule, target, envelope). Attempt n
// (n >= 1) is followed by a delay of min(BaseDelay*Multiplier^(n-1), MaxDelay)
// until MaxAttempts invocations have failed.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
	// Jitter is the randomization factor applied to each delay.
	Jitter float64
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Minute,
		MaxAttempts: 3,
	}
}

func PolicyFromConfig(cfg config.DeliveryRetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Jitter > 0 {
		p.Jitter = cfg.Jitter
	}
	return p
}

// NewBackOff returns the delay sequence for one delivery. It yields
// backoff.Stop once MaxAttempts-1 retries were handed out.
func (p Policy) NewBackOff() backoff.BackOff {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	exp := retry.ExponentialBackoff(p.BaseDelay, p.MaxDelay, p.Multiplier, p.Jitter)
	return backoff.WithMaxRetries(exp, uint64(maxAttempts-1))
}

// Delay is the un-jittered wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return retry.CalculateBackoffDuration(attempt, p.BaseDelay, p.Multiplier, p.MaxDelay)
}
