//go:build integration

package deadletter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/testinfra"
	"eventrouter/pkg/models"
)

func sampleAttempts(n int) []models.DeliveryAttempt {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	out := make([]models.DeliveryAttempt, 0, n)
	for i := 0; i < n; i++ {
		env := models.NewEnvelopeBuilder().
			WithID(fmt.Sprintf("evt-%d", i)).
			WithSource("aws.ec2").
			WithDetailType("EC2 Instance State-change Notification").
			WithTime(base).
			WithDetail(map[string]interface{}{"state": "stopped"}).
			Build()
		out = append(out, models.DeliveryAttempt{
			ID:             fmt.Sprintf("attempt-%d", i),
			RuleID:         "ec2-instance-change",
			TargetID:       "handler",
			Envelope:       env,
			AttemptCount:   3,
			LastError:      "connection refused",
			FirstAttemptAt: base,
			Reason:         models.ReasonRetryExhausted,
			RecordedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

// assertListable records three attempts and pages through them newest first.
func assertListable(t *testing.T, sink Sink) {
	t.Helper()
	ctx := context.Background()

	for _, a := range sampleAttempts(3) {
		require.NoError(t, sink.Record(ctx, a))
	}

	lister, ok := sink.(Lister)
	require.True(t, ok)

	page, err := lister.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "attempt-2", page[0].ID)
	assert.Equal(t, "attempt-1", page[1].ID)
	assert.Equal(t, "ec2-instance-change", page[0].RuleID)
	assert.Equal(t, 3, page[0].AttemptCount)
	assert.Equal(t, models.ReasonRetryExhausted, page[0].Reason)
	assert.Equal(t, "aws.ec2", page[0].Envelope.Source)
	assert.Equal(t, "stopped", page[0].Envelope.Detail["state"])

	rest, err := lister.List(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "attempt-0", rest[0].ID)
}

func TestPostgresSink(t *testing.T) {
	db := testinfra.StartPostgres(t)
	sink, err := NewSink(context.Background(), config.DeadLetterConfig{Sink: constants.SinkPostgres}, SinkDeps{Postgres: db})
	require.NoError(t, err)

	assertListable(t, sink)

	// Re-recording the same attempt is idempotent.
	require.NoError(t, sink.Record(context.Background(), sampleAttempts(1)[0]))
	all, err := sink.(Lister).List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMongoSink(t *testing.T) {
	db := testinfra.StartMongo(t)
	sink, err := NewSink(context.Background(), config.DeadLetterConfig{Sink: constants.SinkMongoDB}, SinkDeps{Mongo: db})
	require.NoError(t, err)

	assertListable(t, sink)
}

func TestRedisSink(t *testing.T) {
	client := testinfra.StartRedis(t)
	sink, err := NewSink(context.Background(), config.DeadLetterConfig{
		Sink:        constants.SinkRedis,
		RedisKey:    "router:dead_letters",
		RedisMaxLen: 2,
	}, SinkDeps{Redis: client})
	require.NoError(t, err)

	ctx := context.Background()
	for _, a := range sampleAttempts(3) {
		require.NoError(t, sink.Record(ctx, a))
	}

	n, err := client.LLen(ctx, "router:dead_letters").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "list is capped")

	page, err := sink.(Lister).List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "attempt-2", page[0].ID)
	assert.Equal(t, "attempt-1", page[1].ID)
}
