package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"eventrouter/pkg/circuitbreaker"
)

// Store claims keys for a TTL. SetNX returns true when the key was free.
type Store interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis Del failed: %w", err)
	}
	return nil
}

// MemoryStore is a single-process store. Expired keys are swept lazily.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	expires map[string]time.Time
	sweepAt int
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:   clock,
		expires: make(map[string]time.Time),
		sweepAt: 1024,
	}
}

func (s *MemoryStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)

	if len(s.expires) >= s.sweepAt {
		for k, exp := range s.expires {
			if !now.Before(exp) {
				delete(s.expires, k)
			}
		}
		s.sweepAt = 2 * len(s.expires)
		if s.sweepAt < 1024 {
			s.sweepAt = 1024
		}
	}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, key)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// BreakerStore stops calling a failing store until the breaker closes again.
type BreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewBreakerStore(store Store, cfg circuitbreaker.Config) *BreakerStore {
	return &BreakerStore{store: store, cb: circuitbreaker.NewWrapper(cfg)}
}

func (s *BreakerStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var claimed bool
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = s.store.SetNX(ctx, key, ttl)
		return err
	})
	if err != nil {
		if s.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for %s: %w", s.cb.Name(), err)
		}
		return false, err
	}
	return claimed, nil
}

func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
}

func (s *BreakerStore) State() string {
	return s.cb.State().String()
}
