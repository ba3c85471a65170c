package targets

import (
	"fmt"
	"net/http"

	"eventrouter/internal/broker"
	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/circuitbreaker"
)

// Deps carries the shared clients targets publish through. A nil producer
// makes targets of that type unavailable.
type Deps struct {
	Kafka          broker.Producer
	NATS           broker.Producer
	CircuitBreaker config.CircuitBreakerConfig
	// OnAbandon records envelopes a queued target could not finish before
	// shutdown.
	OnAbandon AbandonFunc
	Logger    logger.Logger
}

func Build(cfg config.TargetConfig, deps Deps) (Target, error) {
	var t Target
	switch cfg.Type {
	case constants.TargetTypeLog:
		t = NewLog(cfg.ID, cfg.Message, deps.Logger.Named("target."+cfg.ID))
	case constants.TargetTypeHTTP:
		var client *http.Client
		if cfg.Timeout > 0 {
			client = &http.Client{Timeout: cfg.Timeout}
		}
		t = NewHTTP(cfg.ID, cfg.URL, cfg.Method, cfg.Headers, client)
	case constants.TargetTypeKafka:
		if deps.Kafka == nil {
			return nil, fmt.Errorf("target %s: kafka producer is not configured", cfg.ID)
		}
		t = NewPublish(cfg.ID, cfg.Topic, deps.Kafka)
	case constants.TargetTypeNATS:
		if deps.NATS == nil {
			return nil, fmt.Errorf("target %s: nats connection is not configured", cfg.ID)
		}
		t = NewPublish(cfg.ID, cfg.Subject, deps.NATS)
	default:
		return nil, fmt.Errorf("target %s: unknown type %q", cfg.ID, cfg.Type)
	}

	if cfg.CircuitBreaker && deps.CircuitBreaker.Enabled {
		t = NewBreaker(t, breakerConfig("target:"+cfg.ID, deps.CircuitBreaker))
	}
	// A queue makes the target asynchronous: failures after buffering are
	// logged, not retried. More than one worker gives up per-target order.
	if cfg.QueueSize > 0 {
		t = NewQueued(cfg.ID, cfg.QueueSize, cfg.QueueWorkers, t.Invoke, deps.OnAbandon, deps.Logger.Named("target."+cfg.ID))
	}
	return t, nil
}

func breakerConfig(name string, cfg config.CircuitBreakerConfig) circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		out.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		out.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 {
		out.FailureRatio = cfg.FailureRatio
	}
	if cfg.MinRequests > 0 {
		out.MinRequests = cfg.MinRequests
	}
	return out
}

// RegisterAll builds and registers every configured target.
func RegisterAll(r *Registry, cfgs []config.TargetConfig, deps Deps) error {
	for _, cfg := range cfgs {
		t, err := Build(cfg, deps)
		if err != nil {
			return err
		}
		if err := r.Register(cfg.Type, t); err != nil {
			return err
		}
	}
	return nil
}
