package config_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventrouter/internal/broker"
	"eventrouter/pkg/models"
)

// Notifier publishes config-update envelopes so other replicas reload.
type Notifier struct {
	producer  broker.Producer
	topic     string
	changedBy string
}

func NewNotifier(producer broker.Producer, topic, changedBy string) *Notifier {
	return &Notifier{
		producer:  producer,
		topic:     topic,
		changedBy: changedBy,
	}
}

func (n *Notifier) NotifyConfigChange(ctx context.Context, eventType, action, resourceID string) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}

	env, err := ConfigEnvelope(models.ConfigUpdateEvent{
		EventType:  eventType,
		ResourceID: resourceID,
		Action:     action,
		Timestamp:  time.Now().UTC(),
		ChangedBy:  n.changedBy,
	})
	if err != nil {
		return err
	}
	return n.producer.Publish(ctx, n.topic, env)
}

// ConfigEnvelope wraps event the way HandleConfigUpdateEvent expects it.
func ConfigEnvelope(event models.ConfigUpdateEvent) (models.Envelope, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("failed to marshal config event: %w", err)
	}
	var detail map[string]interface{}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return models.Envelope{}, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	return models.NewEnvelopeBuilder().
		WithSource(models.SourceConfigEvents).
		WithDetailType(models.DetailTypeConfigUpdate).
		WithTime(event.Timestamp).
		WithDetail(detail).
		Build(), nil
}
