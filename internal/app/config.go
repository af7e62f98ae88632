package app

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/checkout/internal/storage/redisstore"
)

// StorageDriver выбирает реализацию репозиториев.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// BrokerKind выбирает транспорт для outbox-событий.
type BrokerKind string

const (
	BrokerNone     BrokerKind = "none"
	BrokerKafka    BrokerKind = "kafka"
	BrokerRabbitMQ BrokerKind = "rabbitmq"
)

// Платёжные шлюзы.
const (
	GatewaySimulated = "simulated"
	GatewayStripe    = "stripe"
)

// StorageConfig: где хранятся данные сервиса.
type StorageConfig struct {
	Driver      StorageDriver
	PostgresDSN string
	// AutoMigrate применяет миграции при старте.
	AutoMigrate bool
}

// BrokerConfig: куда outbox-воркер публикует события.
type BrokerConfig struct {
	Kind         BrokerKind
	KafkaBrokers []string
	// KafkaTopic: топик для событий сервиса.
	KafkaTopic     string
	RabbitURL      string
	RabbitExchange string
}

// OutboxConfig: параметры outbox-воркера.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	// MaxPending: размер очереди, при котором /healthz сообщает degraded.
	MaxPending int
}

// OrderConfig: настройки сервиса заказов.
type OrderConfig struct {
	GRPCAddr    string
	MetricsAddr string
	Storage     StorageConfig
	Broker      BrokerConfig
	Outbox      OutboxConfig

	InventoryURL string
	CartURL      string
	CallTimeout  time.Duration

	ReconcileInterval    time.Duration
	ReconcileMaxAttempts int
	// MaxDeadTasks: число задач в dead, при котором /healthz сообщает degraded.
	MaxDeadTasks int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// ConsumePaymentEvents включает второй путь финализации через Kafka.
	ConsumePaymentEvents bool
	ConsumerGroup        string
}

// PaymentConfig: настройки сервиса платежей.
type PaymentConfig struct {
	GRPCAddr    string
	MetricsAddr string
	Storage     StorageConfig
	Broker      BrokerConfig
	Outbox      OutboxConfig

	OrderServiceAddr string
	FinalizeTimeout  time.Duration

	Gateway          string
	SimulatedLatency time.Duration
	StripeSecretKey  string
	StripeBaseURL    string
	ChargeTimeout    time.Duration
}

// InventoryConfig: настройки HTTP-сервиса склада.
type InventoryConfig struct {
	HTTPAddr string
	Storage  StorageConfig
}

// CartConfig: настройки HTTP-сервиса корзины. Пустой RedisURL означает хранение в памяти.
type CartConfig struct {
	HTTPAddr string
	RedisURL string
	CartTTL  time.Duration
}

// DefaultStorageConfig хранит данные в памяти процесса.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriverMemory,
		AutoMigrate: true,
	}
}

// DefaultBrokerConfig не публикует события никуда; адреса брокеров заполнены для локального запуска.
func DefaultBrokerConfig(topic string) BrokerConfig {
	return BrokerConfig{
		Kind:           BrokerNone,
		KafkaBrokers:   kafka.DefaultProducerConfig().Brokers,
		KafkaTopic:     topic,
		RabbitURL:      rabbitmq.DefaultConfig().URL,
		RabbitExchange: rabbitmq.DefaultConfig().Exchange,
	}
}

func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		MaxAttempts:  3,
		RetryDelay:   100 * time.Millisecond,
		MaxPending:   1000,
	}
}

func DefaultOrderConfig() OrderConfig {
	return OrderConfig{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		Storage:                     DefaultStorageConfig(),
		Broker:                      DefaultBrokerConfig(kafka.TopicOrderEvents),
		Outbox:                      DefaultOutboxConfig(),
		InventoryURL:                "http://localhost:8081",
		CartURL:                     "http://localhost:8082",
		CallTimeout:                 2 * time.Second,
		ReconcileInterval:           2 * time.Second,
		ReconcileMaxAttempts:        8,
		MaxDeadTasks:                1,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ConsumePaymentEvents:        true,
		ConsumerGroup:               "checkout-order-service",
	}
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		GRPCAddr:         ":50052",
		MetricsAddr:      ":9091",
		Storage:          DefaultStorageConfig(),
		Broker:           DefaultBrokerConfig(kafka.TopicPaymentEvents),
		Outbox:           DefaultOutboxConfig(),
		OrderServiceAddr: "localhost:50051",
		FinalizeTimeout:  5 * time.Second,
		Gateway:          GatewaySimulated,
		SimulatedLatency: 50 * time.Millisecond,
		ChargeTimeout:    10 * time.Second,
	}
}

func DefaultInventoryConfig() InventoryConfig {
	return InventoryConfig{
		HTTPAddr: ":8081",
		Storage:  DefaultStorageConfig(),
	}
}

func DefaultCartConfig() CartConfig {
	return CartConfig{
		HTTPAddr: ":8082",
		CartTTL:  redisstore.DefaultCartTTL,
	}
}
