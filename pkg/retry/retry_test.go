package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnFatal(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(errors.New("bad request"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(4), func() error {
		calls++
		return errors.New("still down")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetryWithCallback_ReportsEveryRetry(t *testing.T) {
	var attempts []int
	_ = RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		return errors.New("nope")
	}, func(attempt int, err error, next time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Greater(t, next, time.Duration(0))
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetry_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 2}, func() error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExponentialBackoffWithoutJitterIsExact(t *testing.T) {
	b := ExponentialBackoff(time.Second, 10*time.Second, 2, 0)

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 8*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Second, b.NextBackOff())
}

func TestCalculateBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 6, want: 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateBackoffDuration(tt.attempt, time.Second, 2, 30*time.Second))
	}
}
