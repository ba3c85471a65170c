// Package dedup drops envelopes whose (source, id) was already accepted
// within a TTL window.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/circuitbreaker"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/tracing"
)

type Service struct {
	store  Store
	ttl    time.Duration
	allow  bool
	logger logger.Logger
}

func NewService(store Store, ttl time.Duration, onStoreError string, log logger.Logger) *Service {
	return &Service{
		store:  store,
		ttl:    ttl,
		allow:  strings.EqualFold(onStoreError, constants.FallbackAllow),
		logger: log,
	}
}

// New builds the service from configuration. It returns nil when
// deduplication is disabled.
func New(cfg config.DeduplicationConfig, cb config.CircuitBreakerConfig, rdb *redis.Client, log logger.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var store Store
	switch cfg.Store {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis dedup store requires a redis client")
		}
		store = NewRedisStore(rdb)
		if cb.Enabled {
			store = NewBreakerStore(store, breakerConfig(cb))
		}
	case "memory", "":
		store = NewMemoryStore(nil)
	default:
		return nil, fmt.Errorf("unknown dedup store: %s", cfg.Store)
	}

	return NewService(store, time.Duration(cfg.TTLSeconds)*time.Second, cfg.OnStoreError, log), nil
}

func breakerConfig(cfg config.CircuitBreakerConfig) circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig("redis-dedup")
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

// Key is the store key for an envelope.
func Key(env models.Envelope) string {
	sum := sha256.Sum256([]byte(env.Source + "|" + env.ID))
	return constants.CacheKeyPrefixDedup + hex.EncodeToString(sum[:])
}

// IsDuplicate claims the envelope's key. A store failure either lets the
// envelope through or rejects it, depending on on_store_error.
func (s *Service) IsDuplicate(ctx context.Context, env models.Envelope) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.check")
	defer span.End()

	claimed, err := s.store.SetNX(ctx, Key(env), s.ttl)
	if err != nil {
		metrics.IncDedupCheck("error")
		tracing.RecordError(span, err)
		if s.allow {
			s.logger.WarnwCtx(ctx, "Dedup store error, allowing envelope (fallback: allow)", "error", err)
			return false, nil
		}
		return false, fmt.Errorf("dedup check failed for envelope %s: %w", env.ID, err)
	}

	if !claimed {
		metrics.IncDedupCheck("duplicate")
		return true, nil
	}
	metrics.IncDedupCheck("unique")
	return false, nil
}

// Release gives up a claim taken by IsDuplicate for an envelope that was not
// accepted after all, so a redelivery is routed instead of dropped.
func (s *Service) Release(ctx context.Context, env models.Envelope) error {
	if err := s.store.Delete(ctx, Key(env)); err != nil {
		return fmt.Errorf("failed to release dedup claim for envelope %s: %w", env.ID, err)
	}
	return nil
}
