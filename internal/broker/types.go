package broker

import (
	"context"

	"eventrouter/pkg/models"
)

// Producer publishes to a Kafka topic or a NATS subject, depending on the
// implementation.
type Producer interface {
	Publish(ctx context.Context, topic string, env models.Envelope) error
	// PublishJSON publishes any JSON document, keyed for partitioning.
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
	Close() error
}

// Consumer blocks in Consume until ctx is cancelled, calling handler for
// every decoded envelope.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, env models.Envelope) error
