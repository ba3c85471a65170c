package constants

import "time"

const ServiceName = "router-service"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "router:dedup:"
)

const (
	DefaultMongoDBName = "event_router"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
	// MaxBatchEntries caps one PutEvents-style ingest request.
	MaxBatchEntries = 10
)

const (
	DefaultTTLSeconds = 3600
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	IngressHTTP      = "http"
	IngressKafka     = "kafka"
	IngressNATS      = "nats"
	IngressScheduler = "scheduler"
	IngressDirect    = "direct"
)

const (
	BrokerKafka = "kafka"
	BrokerNATS  = "nats"
	BrokerNone  = "none"
)

const (
	TargetTypeLog   = "log"
	TargetTypeHTTP  = "http"
	TargetTypeKafka = "kafka"
	TargetTypeNATS  = "nats"
)

const (
	SinkMemory   = "memory"
	SinkLog      = "log"
	SinkKafka    = "kafka"
	SinkNATS     = "nats"
	SinkPostgres = "postgres"
	SinkMongoDB  = "mongodb"
	SinkRedis    = "redis"
)

const (
	RuleSourceConfig   = "config"
	RuleSourcePostgres = "postgres"
)
