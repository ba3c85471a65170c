package config

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the shape of the configuration. Patterns, conditions
// and cadences are compiled later by the components that own them.
func ValidateStatic(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validateDispatch(c.Dispatch) },
		func(c *Config) error { return validateDeliveryRetry(c.Retry) },
		validateDeadLetter,
		validateRules,
		validateTargets,
		validateSchedules,
		validateDeduplication,
	}

	var errs []error
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if err := validatePort("server.port", cfg.Port); err != nil {
		return err
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	case "nats":
		return validateNATS(cfg.NATS)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, nats, none)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.InputTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.input_topic",
			Message: "Kafka input topic is required",
		}
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateNATS(cfg NATSConfig) error {
	if !strings.HasPrefix(cfg.URL, "nats://") && !strings.HasPrefix(cfg.URL, "tls://") {
		return &ValidationError{
			Field:   "broker.nats.url",
			Message: "NATS URL must start with nats:// or tls://",
		}
	}

	if cfg.InputSubject == "" {
		return &ValidationError{
			Field:   "broker.nats.input_subject",
			Message: "NATS input subject is required",
		}
	}

	return validateRetry("broker.nats.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix,
			Message: "intervals must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" {
		if err := validatePort("database.redis.port", cfg.Redis.Port); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if err := validatePort("database.postgres.port", cfg.Port); err != nil {
		return err
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateDispatch(cfg DispatchConfig) error {
	if cfg.MaxConcurrency < 1 {
		return &ValidationError{
			Field:   "dispatch.max_concurrency",
			Message: "max_concurrency must be at least 1",
		}
	}

	if cfg.InvocationTimeout <= 0 {
		return &ValidationError{
			Field:   "dispatch.invocation_timeout",
			Message: "invocation_timeout must be positive",
		}
	}

	if cfg.DrainGrace < 0 {
		return &ValidationError{
			Field:   "dispatch.drain_grace",
			Message: "drain_grace must be non-negative",
		}
	}

	return nil
}

func validateDeliveryRetry(cfg DeliveryRetryConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "retry.max_attempts",
			Message: "max_attempts must be at least 1",
		}
	}

	if cfg.BaseDelay <= 0 {
		return &ValidationError{
			Field:   "retry.base_delay",
			Message: "base_delay must be positive",
		}
	}

	if cfg.Multiplier < 1 {
		return &ValidationError{
			Field:   "retry.multiplier",
			Message: "multiplier must be at least 1",
		}
	}

	if cfg.MaxDelay < cfg.BaseDelay {
		return &ValidationError{
			Field:   "retry.max_delay",
			Message: "max_delay must be greater than or equal to base_delay",
		}
	}

	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return &ValidationError{
			Field:   "retry.jitter",
			Message: "jitter must be in [0, 1)",
		}
	}

	return nil
}

func validateDeadLetter(cfg *Config) error {
	dl := cfg.DeadLetter
	switch dl.Sink {
	case "memory":
		if dl.MemoryCapacity < 1 {
			return &ValidationError{
				Field:   "dead_letter.memory_capacity",
				Message: "memory_capacity must be at least 1",
			}
		}
	case "log":
	case "kafka":
		if len(cfg.Broker.Kafka.Brokers) == 0 || cfg.Broker.Kafka.DLQTopic == "" {
			return &ValidationError{
				Field:   "dead_letter.sink",
				Message: "kafka sink requires broker.kafka.brokers and broker.kafka.dlq_topic",
			}
		}
	case "nats":
		if cfg.Broker.NATS.URL == "" || cfg.Broker.NATS.DLQSubject == "" {
			return &ValidationError{
				Field:   "dead_letter.sink",
				Message: "nats sink requires broker.nats.url and broker.nats.dlq_subject",
			}
		}
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return &ValidationError{
				Field:   "dead_letter.sink",
				Message: "postgres sink requires database.postgres",
			}
		}
	case "mongodb":
		if cfg.Database.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "dead_letter.sink",
				Message: "mongodb sink requires database.mongodb",
			}
		}
	case "redis":
		if cfg.Database.Redis.Host == "" || dl.RedisKey == "" {
			return &ValidationError{
				Field:   "dead_letter.sink",
				Message: "redis sink requires database.redis and dead_letter.redis_key",
			}
		}
	default:
		return &ValidationError{
			Field:   "dead_letter.sink",
			Message: fmt.Sprintf("unknown sink: %s (supported: memory, log, kafka, nats, postgres, mongodb, redis)", dl.Sink),
		}
	}
	return nil
}

func validateRules(cfg *Config) error {
	switch cfg.Rules.Source {
	case "config":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return &ValidationError{
				Field:   "rules.source",
				Message: "postgres rule source requires database.postgres",
			}
		}
	default:
		return &ValidationError{
			Field:   "rules.source",
			Message: fmt.Sprintf("unknown rule source: %s (supported: config, postgres)", cfg.Rules.Source),
		}
	}

	seen := make(map[string]bool, len(cfg.Rules.Definitions))
	for i, rule := range cfg.Rules.Definitions {
		field := fmt.Sprintf("rules.definitions[%d]", i)
		if rule.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "rule ID is required"}
		}
		if seen[rule.ID] {
			return &ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate rule ID: %s", rule.ID)}
		}
		seen[rule.ID] = true
		if strings.TrimSpace(rule.Pattern) == "" {
			return &ValidationError{Field: field + ".pattern", Message: "event pattern is required"}
		}
		if len(rule.Targets) == 0 {
			return &ValidationError{Field: field + ".targets", Message: "at least one target is required"}
		}
	}

	return nil
}

func validateTargets(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Targets))
	for i, target := range cfg.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if target.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "target ID is required"}
		}
		if seen[target.ID] {
			return &ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate target ID: %s", target.ID)}
		}
		seen[target.ID] = true

		switch target.Type {
		case "log":
		case "http":
			if !strings.HasPrefix(target.URL, "http://") && !strings.HasPrefix(target.URL, "https://") {
				return &ValidationError{Field: field + ".url", Message: "http target requires an http(s) URL"}
			}
		case "kafka":
			if target.Topic == "" || len(cfg.Broker.Kafka.Brokers) == 0 {
				return &ValidationError{Field: field + ".topic", Message: "kafka target requires a topic and broker.kafka.brokers"}
			}
		case "nats":
			if target.Subject == "" || cfg.Broker.NATS.URL == "" {
				return &ValidationError{Field: field + ".subject", Message: "nats target requires a subject and broker.nats.url"}
			}
		default:
			return &ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown target type: %s (supported: log, http, kafka, nats)", target.Type),
			}
		}
		if target.QueueSize < 0 {
			return &ValidationError{Field: field + ".queue_size", Message: "queue_size must not be negative"}
		}
		// A second worker would let envelopes for one target overtake each other.
		if target.QueueWorkers < 0 || target.QueueWorkers > 1 {
			return &ValidationError{Field: field + ".queue_workers", Message: "queue_workers must be 0 or 1 to keep per-target order"}
		}
	}

	for i, rule := range cfg.Rules.Definitions {
		for _, targetID := range rule.Targets {
			if !seen[targetID] {
				return &ValidationError{
					Field:   fmt.Sprintf("rules.definitions[%d].targets", i),
					Message: fmt.Sprintf("unknown target: %s", targetID),
				}
			}
		}
	}

	return nil
}

func validateSchedules(cfg *Config) error {
	targets := make(map[string]bool, len(cfg.Targets))
	for _, target := range cfg.Targets {
		targets[target.ID] = true
	}

	seen := make(map[string]bool, len(cfg.Scheduler.Schedules))
	for i, schedule := range cfg.Scheduler.Schedules {
		field := fmt.Sprintf("scheduler.schedules[%d]", i)
		if schedule.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "schedule ID is required"}
		}
		if seen[schedule.ID] {
			return &ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate schedule ID: %s", schedule.ID)}
		}
		seen[schedule.ID] = true
		if schedule.Cadence == "" {
			return &ValidationError{Field: field + ".cadence", Message: "cadence is required"}
		}
		if !targets[schedule.Target] {
			return &ValidationError{Field: field + ".target", Message: fmt.Sprintf("unknown target: %s", schedule.Target)}
		}
	}

	return nil
}

func validateDeduplication(cfg *Config) error {
	dedup := cfg.Deduplication
	if !dedup.Enabled {
		return nil
	}

	switch dedup.Store {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Host == "" {
			return &ValidationError{
				Field:   "deduplication.store",
				Message: "redis store requires database.redis",
			}
		}
	default:
		return &ValidationError{
			Field:   "deduplication.store",
			Message: fmt.Sprintf("unknown store: %s (supported: memory, redis)", dedup.Store),
		}
	}

	if dedup.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "deduplication.ttl_seconds",
			Message: "TTL must be positive",
		}
	}

	validOnError := map[string]bool{"allow": true, "deny": true}
	if !validOnError[strings.ToLower(dedup.OnStoreError)] {
		return &ValidationError{
			Field:   "deduplication.on_store_error",
			Message: fmt.Sprintf("invalid on_store_error value: %s (valid: allow, deny)", dedup.OnStoreError),
		}
	}

	return nil
}
