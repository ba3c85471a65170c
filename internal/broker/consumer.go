package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventrouter/internal/config"
	"eventrouter/internal/logger"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/models"
	"eventrouter/pkg/retry"
)

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

func decodeEnvelope(body []byte, ingress string) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return models.Normalize(env, ingress, time.Now()), nil
}

func messageContext(ctx context.Context, env models.Envelope, serviceName string) context.Context {
	if env.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, env.Metadata.TraceID)
	}
	ctx = logging.WithEventID(ctx, env.ID)
	return logging.WithServiceName(ctx, serviceName)
}

// handleWithRetry runs handler under policy. Permanent errors such as a
// failed envelope validation are returned without retrying.
func handleWithRetry(ctx context.Context, log logger.Logger, policy retry.Policy, topic string, env models.Envelope, handler HandlerFunc) error {
	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				log.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, env)
	}, func(attempt int, err error, nextDelay time.Duration) {
		log.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func ingressFailure(env models.Envelope, err error, attempts int) models.DeliveryAttempt {
	now := time.Now().UTC()
	return models.DeliveryAttempt{
		ID:             env.ID,
		Envelope:       env,
		AttemptCount:   attempts,
		LastError:      err.Error(),
		FirstAttemptAt: env.Metadata.ReceivedAt,
		Reason:         models.ReasonIngressFailed,
		RecordedAt:     now,
	}
}
