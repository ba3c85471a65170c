package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "router.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "none", cfg.Broker.Type)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Len(t, cfg.Rules.Definitions, 3)
	assert.Equal(t, []string{"event-demo-handler"}, cfg.Rules.Definitions[0].Targets)
	assert.Contains(t, cfg.Rules.Definitions[2].Pattern, `"terminated"`)
	require.Len(t, cfg.Scheduler.Schedules, 1)
	assert.Equal(t, "rate(2 minutes)", cfg.Scheduler.Schedules[0].Cadence)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "log", cfg.Targets[0].Type)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Dispatch.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.InvocationTimeout)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 5*time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, "memory", cfg.DeadLetter.Sink)
	assert.Equal(t, "config", cfg.Rules.Source)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("BROKER_TYPE", "kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "unknown broker",
			body:  "broker:\n  type: rabbitmq\n",
			field: "broker.type",
		},
		{
			name:  "kafka without brokers",
			body:  "broker:\n  type: kafka\n",
			field: "broker.kafka.brokers",
		},
		{
			name:  "queued target with parallel workers",
			body:  "targets:\n  - {id: t1, type: log, queue_size: 16, queue_workers: 4}\n",
			field: "targets[0].queue_workers",
		},
		{
			name:  "zero attempts",
			body:  "retry:\n  max_attempts: 0\n",
			field: "retry.max_attempts",
		},
		{
			name:  "jitter out of range",
			body:  "retry:\n  jitter: 1.5\n",
			field: "retry.jitter",
		},
		{
			name:  "unknown sink",
			body:  "dead_letter:\n  sink: s3\n",
			field: "dead_letter.sink",
		},
		{
			name:  "postgres sink without database",
			body:  "dead_letter:\n  sink: postgres\n",
			field: "dead_letter.sink",
		},
		{
			name: "duplicate rule id",
			body: `targets:
  - {id: t1, type: log}
rules:
  definitions:
    - {id: r1, pattern: '{"source": ["a"]}', targets: [t1]}
    - {id: r1, pattern: '{"source": ["b"]}', targets: [t1]}
`,
			field: "rules.definitions[1].id",
		},
		{
			name: "rule references unknown target",
			body: `rules:
  definitions:
    - {id: r1, pattern: '{"source": ["a"]}', targets: [nope]}
`,
			field: "rules.definitions[0].targets",
		},
		{
			name: "http target without url",
			body: `targets:
  - {id: t1, type: http}
`,
			field: "targets[0].url",
		},
		{
			name: "schedule without cadence",
			body: `targets:
  - {id: t1, type: log}
scheduler:
  schedules:
    - {id: s1, target: t1}
`,
			field: "scheduler.schedules[0].cadence",
		},
		{
			name: "redis dedup without redis",
			body: `deduplication:
  enabled: true
  store: redis
`,
			field: "deduplication.store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected a ValidationError, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
