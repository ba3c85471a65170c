package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, env models.Envelope) error {
	return p.PublishJSON(ctx, topic, env.ID, env)
}

func (p *KafkaProducer) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   body,
			Headers: tracing.InjectTraceContext(ctx, nil),
			Time:    start,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncBrokerMessagesWritten(constants.BrokerKafka, topic)
	metrics.ObserveBrokerMessageSize(constants.BrokerKafka, topic, "out", len(body))
	metrics.ObserveBrokerWriteDuration(constants.BrokerKafka, topic, time.Since(start))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads one or more topics within the configured consumer
// group. Each Consume call owns its own reader.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	mu          sync.Mutex
	readers     []*kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: constants.ServiceName,
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", topic,
				)
				time.Sleep(time.Second)
				continue
			}

			metrics.IncBrokerMessagesRead(constants.BrokerKafka, topic)
			metrics.ObserveBrokerMessageSize(constants.BrokerKafka, topic, "in", len(m.Value))
			metrics.SetKafkaConsumerLag(topic, m.Partition, m.HighWaterMark-m.Offset-1)

			c.processMessage(ctx, m, topic, handler)

			if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
				c.logger.ErrorwCtx(consumeCtx, "Failed to commit message",
					"error", err,
					"topic", topic,
				)
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

// processMessage never fails the fetch loop: undecodable messages are
// dropped and handler failures go to the DLQ topic when one is configured.
func (c *KafkaConsumer) processMessage(ctx context.Context, m kafka.Message, topic string, handler HandlerFunc) {
	env, err := decodeEnvelope(m.Value, constants.IngressKafka)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to unmarshal message",
			"error", err,
			"topic", topic,
			"offset", m.Offset,
			"service_name", c.serviceName,
		)
		return
	}

	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()
	msgCtx = messageContext(msgCtx, env, c.serviceName)

	policy := retryPolicy(c.cfg.Retry)
	err = handleWithRetry(msgCtx, c.logger, policy, topic, env, handler)
	if err == nil {
		return
	}
	tracing.RecordError(span, err)

	c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
		"error", err,
		"topic", topic,
	)
	if c.dlqProducer == nil {
		c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing message to avoid blocking", "topic", topic)
		return
	}
	if dlqErr := c.sendToDLQ(msgCtx, env, err, policy.MaxAttempts); dlqErr != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ",
			"error", dlqErr,
			"topic", topic,
		)
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.mu.Lock()
	for _, reader := range c.readers {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.mu.Unlock()
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, env models.Envelope, cause error, attempts int) error {
	record := ingressFailure(env, cause, attempts)
	if err := c.dlqProducer.PublishJSON(ctx, c.cfg.DLQTopic, record.ID, record); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.IncDeadLetter(constants.SinkKafka, models.ReasonIngressFailed)
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"dlq_topic", c.cfg.DLQTopic,
		"reason", cause.Error(),
	)
	return nil
}
