package deadletter

import (
	"context"

	"eventrouter/internal/broker"
	"eventrouter/pkg/models"
)

// BrokerSink publishes records to a Kafka DLQ topic or a NATS subject.
type BrokerSink struct {
	name     string
	topic    string
	producer broker.Producer
}

func NewBrokerSink(name, topic string, producer broker.Producer) *BrokerSink {
	return &BrokerSink{name: name, topic: topic, producer: producer}
}

func (s *BrokerSink) Name() string { return s.name }

func (s *BrokerSink) Record(ctx context.Context, attempt models.DeliveryAttempt) error {
	return s.producer.PublishJSON(ctx, s.topic, attempt.ID, attempt)
}
