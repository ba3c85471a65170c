package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/tracing"
)

// ConnectNATS dials the configured server. The connection is shared by the
// NATS producer, consumer, targets and dead-letter sink.
func ConnectNATS(cfg config.NATSConfig, log logger.Logger) (*nats.Conn, error) {
	name := cfg.Name
	if name == "" {
		name = constants.ServiceName
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

type NATSProducer struct {
	conn   *nats.Conn
	logger logger.Logger
}

func NewNATSProducer(conn *nats.Conn, log logger.Logger) *NATSProducer {
	return &NATSProducer{conn: conn, logger: log}
}

func (p *NATSProducer) Publish(ctx context.Context, subject string, env models.Envelope) error {
	return p.PublishJSON(ctx, subject, env.ID, env)
}

func (p *NATSProducer) PublishJSON(ctx context.Context, subject, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = body
	if key != "" {
		msg.Header.Set(nats.MsgIdHdr, key)
	}
	tracing.InjectNATSHeaders(ctx, msg)

	start := time.Now()
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish nats message: %w", err)
	}

	metrics.IncBrokerMessagesWritten(constants.BrokerNATS, subject)
	metrics.ObserveBrokerMessageSize(constants.BrokerNATS, subject, "out", len(body))
	metrics.ObserveBrokerWriteDuration(constants.BrokerNATS, subject, time.Since(start))
	return nil
}

// Close flushes pending publishes. The connection itself belongs to the caller.
func (p *NATSProducer) Close() error {
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Flush()
}

// NATSConsumer subscribes to subjects, using the queue group when one is
// configured so that several routers share the input.
type NATSConsumer struct {
	cfg         config.NATSConfig
	conn        *nats.Conn
	logger      logger.Logger
	dlqProducer Producer
	serviceName string

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNATSConsumer(conn *nats.Conn, cfg config.NATSConfig, log logger.Logger) *NATSConsumer {
	consumer := &NATSConsumer{
		cfg:         cfg,
		conn:        conn,
		logger:      log,
		serviceName: constants.ServiceName,
	}
	if cfg.DLQSubject != "" {
		consumer.dlqProducer = NewNATSProducer(conn, log)
	}
	return consumer
}

func (c *NATSConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *NATSConsumer) Consume(ctx context.Context, subject string, handler HandlerFunc) error {
	var (
		sub *nats.Subscription
		err error
	)
	// Config updates must reach every instance, so they never use the queue group.
	if c.cfg.QueueGroup != "" && subject != c.cfg.ConfigUpdateSubject {
		sub, err = c.conn.QueueSubscribeSync(subject, c.cfg.QueueGroup)
	} else {
		sub, err = c.conn.SubscribeSync(subject)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"subject", subject,
		"queue_group", c.cfg.QueueGroup,
	)

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"subject", subject,
					"reason", "context canceled",
				)
				return ctx.Err()
			}
			if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
				return fmt.Errorf("nats subscription ended: %w", err)
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching nats message",
				"error", err,
				"subject", subject,
			)
			continue
		}

		metrics.IncBrokerMessagesRead(constants.BrokerNATS, subject)
		metrics.ObserveBrokerMessageSize(constants.BrokerNATS, subject, "in", len(msg.Data))
		c.processMessage(ctx, msg, subject, handler)
	}
}

func (c *NATSConsumer) processMessage(ctx context.Context, msg *nats.Msg, subject string, handler HandlerFunc) {
	env, err := decodeEnvelope(msg.Data, constants.IngressNATS)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to unmarshal message",
			"error", err,
			"subject", subject,
		)
		return
	}

	msgCtx, span := tracing.StartSpanFromNATSMessage(ctx, "nats.consume", msg)
	defer span.End()
	msgCtx = messageContext(msgCtx, env, c.serviceName)

	policy := retryPolicy(c.cfg.Retry)
	err = handleWithRetry(msgCtx, c.logger, policy, subject, env, handler)
	if err == nil {
		return
	}
	tracing.RecordError(span, err)

	c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
		"error", err,
		"subject", subject,
	)
	if c.dlqProducer == nil {
		return
	}
	record := ingressFailure(env, err, policy.MaxAttempts)
	if dlqErr := c.dlqProducer.PublishJSON(msgCtx, c.cfg.DLQSubject, record.ID, record); dlqErr != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ",
			"error", dlqErr,
			"subject", subject,
		)
		return
	}
	metrics.IncDeadLetter(constants.SinkNATS, models.ReasonIngressFailed)
}

func (c *NATSConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, err)
		}
	}
	c.subs = nil
	return errors.Join(errs...)
}
