package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"eventrouter/internal/broker"
	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
)

// Base holds what every router process needs: config, logger and, unless the
// broker type is "none", a producer/consumer pair.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	NATS     *nats.Conn
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(serviceName string) error {
	if b.Config.Broker.Type == "" || b.Config.Broker.Type == constants.BrokerNone {
		b.Logger.Info("No broker configured, ingress is HTTP and scheduler only")
		return nil
	}

	if b.Config.Broker.Type == constants.BrokerNATS {
		conn, err := broker.ConnectNATS(b.Config.Broker.NATS, b.Logger)
		if err != nil {
			return err
		}
		b.NATS = conn
	}

	producer, err := broker.NewProducer(b.Config.Broker, b.NATS, b.Logger)
	if err != nil {
		b.closeNATS()
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.NATS, b.Logger)
	if err != nil {
		producer.Close()
		b.closeNATS()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// EnsureNATS connects to NATS for targets or sinks even when the ingress
// broker is Kafka or none.
func (b *Base) EnsureNATS() (*nats.Conn, error) {
	if b.NATS != nil {
		return b.NATS, nil
	}
	conn, err := broker.ConnectNATS(b.Config.Broker.NATS, b.Logger)
	if err != nil {
		return nil, err
	}
	b.NATS = conn
	return conn, nil
}

func (b *Base) closeNATS() {
	if b.NATS != nil {
		b.NATS.Close()
		b.NATS = nil
	}
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.NATS != nil {
		if err := b.NATS.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("nats drain error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	// Dispatcher drain runs first so dead letters can still be published.
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
