package deadletter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"eventrouter/internal/broker"
	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/migrations"
)

// SinkDeps are the clients a sink may write through. Only the one the
// configured sink needs must be set.
type SinkDeps struct {
	Postgres      *sql.DB
	Mongo         *mongo.Database
	Redis         *redis.Client
	KafkaProducer broker.Producer
	KafkaTopic    string
	NATSProducer  broker.Producer
	NATSSubject   string
	Logger        logger.Logger
}

func NewSink(ctx context.Context, cfg config.DeadLetterConfig, deps SinkDeps) (Sink, error) {
	switch cfg.Sink {
	case "", constants.SinkMemory:
		return NewMemorySink(cfg.MemoryCapacity), nil
	case constants.SinkLog:
		return NewLogSink(deps.Logger), nil
	case constants.SinkKafka:
		if deps.KafkaProducer == nil || deps.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka dead-letter sink requires a producer and dlq topic")
		}
		return NewBrokerSink(constants.SinkKafka, deps.KafkaTopic, deps.KafkaProducer), nil
	case constants.SinkNATS:
		if deps.NATSProducer == nil || deps.NATSSubject == "" {
			return nil, fmt.Errorf("nats dead-letter sink requires a connection and dlq subject")
		}
		return NewBrokerSink(constants.SinkNATS, deps.NATSSubject, deps.NATSProducer), nil
	case constants.SinkPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("postgres dead-letter sink requires a database")
		}
		return NewPostgresSink(deps.Postgres), nil
	case constants.SinkMongoDB:
		if deps.Mongo == nil {
			return nil, fmt.Errorf("mongodb dead-letter sink requires a database")
		}
		collection := cfg.MongoCollection
		if collection == "" {
			collection = DefaultMongoCollection
		}
		if err := migrations.EnsureDeadLetterIndexes(ctx, deps.Mongo, collection); err != nil {
			return nil, err
		}
		return NewMongoSink(deps.Mongo, collection), nil
	case constants.SinkRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis dead-letter sink requires a client")
		}
		return NewRedisSink(deps.Redis, cfg.RedisKey, cfg.RedisMaxLen), nil
	default:
		return nil, fmt.Errorf("unknown dead-letter sink: %s", cfg.Sink)
	}
}
