package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/rabbitmq"
)

// publishing: транспорт outbox-событий. При BrokerNone publisher равен nil
// и outbox-воркер не запускается: события копятся в хранилище.
type publishing struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	// producer заполнен только для Kafka: его используют сага и DLQ consumer-а.
	producer *kafka.Producer
	close    func()
}

func openBroker(cfg BrokerConfig, clientID string, logger *log.Entry) (*publishing, error) {
	switch cfg.Kind {
	case "", BrokerNone:
		logger.Warn("broker is not configured, outbox events stay in storage")
		return &publishing{close: func() {}}, nil

	case BrokerKafka:
		producerCfg := kafka.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producerCfg.ClientID = clientID
		producer, err := kafka.NewProducer(producerCfg)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = kafka.TopicSagaEvents
		}
		logger.WithFields(log.Fields{"brokers": cfg.KafkaBrokers, "topic": topic}).Info("kafka producer initialized")
		return &publishing{
			publisher: kafka.NewOutboxPublisher(producer, topic),
			dlq:       kafka.NewDeadLetterPublisher(producer, topic),
			producer:  producer,
			close: func() {
				if err := producer.Close(); err != nil {
					logger.WithError(err).Warn("failed to close kafka producer")
				}
			},
		}, nil

	case BrokerRabbitMQ:
		rabbitCfg := rabbitmq.DefaultConfig()
		rabbitCfg.URL = cfg.RabbitURL
		if cfg.RabbitExchange != "" {
			rabbitCfg.Exchange = cfg.RabbitExchange
		}
		publisher, err := rabbitmq.Dial(rabbitCfg)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		logger.WithField("exchange", rabbitCfg.Exchange).Info("rabbitmq publisher initialized")
		return &publishing{
			publisher: publisher,
			close: func() {
				if err := publisher.Close(); err != nil {
					logger.WithError(err).Warn("failed to close rabbitmq publisher")
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Kind)
	}
}
