package deadletter

import (
	"context"
	"sync"

	"eventrouter/internal/constants"
	"eventrouter/pkg/models"
)

// MemorySink keeps the most recent records up to its capacity.
type MemorySink struct {
	mu       sync.RWMutex
	capacity int
	records  []models.DeliveryAttempt
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemorySink{capacity: capacity}
}

func (s *MemorySink) Name() string { return constants.SinkMemory }

func (s *MemorySink) Record(ctx context.Context, attempt models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, attempt)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append([]models.DeliveryAttempt(nil), s.records[over:]...)
	}
	return nil
}

// List returns records newest first.
func (s *MemorySink) List(ctx context.Context, limit, offset int) ([]models.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || offset < 0 {
		return []models.DeliveryAttempt{}, nil
	}
	out := make([]models.DeliveryAttempt, 0, limit)
	for i := len(s.records) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
