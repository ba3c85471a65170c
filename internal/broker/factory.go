package broker

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
)

// NewProducer builds the producer for cfg.Type. conn is required for NATS.
func NewProducer(cfg config.BrokerConfig, conn *nats.Conn, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case constants.BrokerNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats broker requires a connection")
		}
		return NewNATSProducer(conn, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, conn *nats.Conn, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case constants.BrokerNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats broker requires a connection")
		}
		return NewNATSConsumer(conn, cfg.NATS, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// InputTopic is the topic or subject ingress events arrive on.
func InputTopic(cfg config.BrokerConfig) string {
	if cfg.Type == constants.BrokerNATS {
		return cfg.NATS.InputSubject
	}
	return cfg.Kafka.InputTopic
}

func ConfigUpdateTopic(cfg config.BrokerConfig) string {
	if cfg.Type == constants.BrokerNATS {
		return cfg.NATS.ConfigUpdateSubject
	}
	return cfg.Kafka.ConfigUpdateTopic
}

func DLQTopic(cfg config.BrokerConfig) string {
	if cfg.Type == constants.BrokerNATS {
		return cfg.NATS.DLQSubject
	}
	return cfg.Kafka.DLQTopic
}
