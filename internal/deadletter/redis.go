package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"eventrouter/internal/constants"
	"eventrouter/pkg/models"
)

// RedisSink pushes records onto a list capped at maxLen entries, newest at
// the head.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

func NewRedisSink(client *redis.Client, key string, maxLen int64) *RedisSink {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

func (s *RedisSink) Name() string { return constants.SinkRedis }

func (s *RedisSink) Record(ctx context.Context, attempt models.DeliveryAttempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, body)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis dead letter push failed: %w", err)
	}
	return nil
}

func (s *RedisSink) List(ctx context.Context, limit, offset int) ([]models.DeliveryAttempt, error) {
	values, err := s.client.LRange(ctx, s.key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dead letter range failed: %w", err)
	}

	records := make([]models.DeliveryAttempt, 0, len(values))
	for _, v := range values {
		var rec models.DeliveryAttempt
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
