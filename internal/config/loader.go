package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("broker.type", "none")
	v.SetDefault("broker.kafka.group_id", "event-router")
	v.SetDefault("broker.kafka.input_topic", "router.events")
	v.SetDefault("broker.kafka.config_update_topic", "router.config_updates")
	v.SetDefault("broker.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("broker.nats.name", "event-router")
	v.SetDefault("broker.nats.input_subject", "router.events")
	v.SetDefault("broker.nats.config_update_subject", "router.config_updates")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dispatch.max_concurrency", 64)
	v.SetDefault("dispatch.invocation_timeout", "30s")
	v.SetDefault("dispatch.drain_grace", "10s")

	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "5m")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.jitter", 0.0)

	v.SetDefault("dead_letter.sink", "memory")
	v.SetDefault("dead_letter.memory_capacity", 1000)
	v.SetDefault("dead_letter.redis_key", "router:dead_letters")
	v.SetDefault("dead_letter.redis_max_len", 10000)
	v.SetDefault("dead_letter.mongo_collection", "dead_letters")

	v.SetDefault("rules.source", "config")
	v.SetDefault("rules.reload.interval_seconds", 30)

	v.SetDefault("deduplication.store", "memory")
	v.SetDefault("deduplication.ttl_seconds", 3600)
	v.SetDefault("deduplication.on_store_error", "allow")

	v.SetDefault("management.enabled", true)
	v.SetDefault("management.rate_limit.rps", 10.0)
	v.SetDefault("management.rate_limit.burst", 20)
	v.SetDefault("management.rate_limit.cleanup_interval", 300)
	v.SetDefault("management.rate_limit.max_age", 600)

	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 3)

	v.SetDefault("tracing.service_name", "router-service")
	v.SetDefault("tracing.sampler.type", "always_on")
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.type", "BROKER_TYPE")
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	v.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	v.BindEnv("broker.kafka.config_update_topic", "BROKER_KAFKA_CONFIG_UPDATE_TOPIC")
	v.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")
	v.BindEnv("broker.nats.url", "BROKER_NATS_URL")
	v.BindEnv("broker.nats.input_subject", "BROKER_NATS_INPUT_SUBJECT")
	v.BindEnv("broker.nats.dlq_subject", "BROKER_NATS_DLQ_SUBJECT")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("dead_letter.sink", "DEAD_LETTER_SINK")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles values viper cannot decode from a plain env string.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
