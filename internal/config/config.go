package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Retry          DeliveryRetryConfig  `mapstructure:"retry"`
	DeadLetter     DeadLetterConfig     `mapstructure:"dead_letter"`
	Rules          RulesConfig          `mapstructure:"rules"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Targets        []TargetConfig       `mapstructure:"targets"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Management     ManagementConfig     `mapstructure:"management"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BrokerConfig selects the ingress broker. Type is "kafka", "nats" or "none".
type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

type KafkaConfig struct {
	Brokers           []string    `mapstructure:"brokers"`
	GroupID           string      `mapstructure:"group_id"`
	InputTopic        string      `mapstructure:"input_topic"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type NATSConfig struct {
	URL                 string      `mapstructure:"url"`
	Name                string      `mapstructure:"name"`
	InputSubject        string      `mapstructure:"input_subject"`
	QueueGroup          string      `mapstructure:"queue_group"`
	ConfigUpdateSubject string      `mapstructure:"config_update_subject"`
	DLQSubject          string      `mapstructure:"dlq_subject"`
	Retry               RetryConfig `mapstructure:"retry"`
}

// RetryConfig bounds broker-side retries: ingress handling and sink writes.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DispatchConfig struct {
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
	DrainGrace        time.Duration `mapstructure:"drain_grace"`
}

// DeliveryRetryConfig is the backoff applied to transient target failures.
type DeliveryRetryConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Jitter      float64       `mapstructure:"jitter"`
}

// DeadLetterConfig selects where exhausted deliveries go. Sink is one of
// memory, log, kafka, nats, postgres, mongodb, redis.
type DeadLetterConfig struct {
	Sink            string `mapstructure:"sink"`
	MemoryCapacity  int    `mapstructure:"memory_capacity"`
	RedisKey        string `mapstructure:"redis_key"`
	RedisMaxLen     int64  `mapstructure:"redis_max_len"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// RulesConfig: Source is "config" (rules below) or "postgres".
type RulesConfig struct {
	Source      string       `mapstructure:"source"`
	Reload      ReloadConfig `mapstructure:"reload"`
	Definitions []RuleConfig `mapstructure:"definitions"`
}

type ReloadConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int `mapstructure:"jitter_max_milliseconds"`
}

// RuleConfig carries the pattern as a JSON document; YAML maps would lose
// the case of detail field names.
type RuleConfig struct {
	ID          string   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Pattern     string   `mapstructure:"pattern"`
	Condition   string   `mapstructure:"condition"`
	Targets     []string `mapstructure:"targets"`
	Disabled    bool     `mapstructure:"disabled"`
}

type SchedulerConfig struct {
	Paused    bool             `mapstructure:"paused"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

type ScheduleConfig struct {
	ID              string `mapstructure:"id"`
	Cadence         string `mapstructure:"cadence"`
	Target          string `mapstructure:"target"`
	FireImmediately bool   `mapstructure:"fire_immediately"`
	Disabled        bool   `mapstructure:"disabled"`
}

// TargetConfig declares a target. Type is log, http, kafka or nats.
type TargetConfig struct {
	ID             string            `mapstructure:"id"`
	Type           string            `mapstructure:"type"`
	URL            string            `mapstructure:"url"`
	Method         string            `mapstructure:"method"`
	Headers        map[string]string `mapstructure:"headers"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	Topic          string            `mapstructure:"topic"`
	Subject        string            `mapstructure:"subject"`
	Message        string            `mapstructure:"message"`
	CircuitBreaker bool              `mapstructure:"circuit_breaker"`
	QueueSize      int               `mapstructure:"queue_size"`
	QueueWorkers   int               `mapstructure:"queue_workers"`
}

type DeduplicationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Store        string `mapstructure:"store"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnStoreError string `mapstructure:"on_store_error"`
}

type ManagementConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
