package targets

import (
	"context"
	"errors"
	"fmt"

	"eventrouter/pkg/circuitbreaker"
	"eventrouter/pkg/models"
)

// Breaker stops calling a failing target for a while. Permanent errors do
// not count against the breaker, and a rejected call is transient so the
// delivery is retried once the breaker lets calls through again.
type Breaker struct {
	target Target
	cb     *circuitbreaker.Wrapper
}

func NewBreaker(target Target, cfg circuitbreaker.Config) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "target:" + target.ID()
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool {
			return Classify(err) != OutcomeTransient
		}
	}
	return &Breaker{target: target, cb: circuitbreaker.NewWrapper(cfg)}
}

func (b *Breaker) ID() string { return b.target.ID() }

func (b *Breaker) Invoke(ctx context.Context, env models.Envelope) error {
	err := b.cb.Execute(ctx, func(ctx context.Context) error {
		return b.target.Invoke(ctx, env)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("target %s: %w", b.target.ID(), err)
	}
	return err
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
