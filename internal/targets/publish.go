package targets

import (
	"context"

	"eventrouter/internal/broker"
	"eventrouter/pkg/models"
)

// Publish forwards the envelope to a Kafka topic or NATS subject through a
// broker producer.
type Publish struct {
	id       string
	topic    string
	producer broker.Producer
}

func NewPublish(id, topic string, producer broker.Producer) *Publish {
	return &Publish{id: id, topic: topic, producer: producer}
}

func (p *Publish) ID() string { return p.id }

func (p *Publish) Invoke(ctx context.Context, env models.Envelope) error {
	return p.producer.Publish(ctx, p.topic, env)
}
