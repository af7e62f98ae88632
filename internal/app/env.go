package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix: общий префикс переменных окружения сервисов.
const EnvPrefix = "CHECKOUT_"

// Env переопределяет поля конфигурации значениями из окружения.
// Пустые переменные игнорируются, ошибки разбора накапливаются до вызова Err.
type Env struct {
	lookup func(string) (string, bool)
	errs   []error
}

// NewEnv читает переменные процесса.
func NewEnv() *Env {
	return NewEnvFrom(os.LookupEnv)
}

// NewEnvFrom читает переменные через lookup, например из map в тестах.
func NewEnvFrom(lookup func(string) (string, bool)) *Env {
	return &Env{lookup: lookup}
}

func (e *Env) value(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *Env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
}

func (e *Env) String(dst *string, key string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *Env) Int(dst *int, key string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *Env) Bool(dst *bool, key string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *Env) Duration(dst *time.Duration, key string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

// List разбирает значения через запятую.
func (e *Env) List(dst *[]string, key string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// Storage читает STORAGE_DRIVER, POSTGRES_DSN и POSTGRES_AUTO_MIGRATE.
func (e *Env) Storage(cfg *StorageConfig) {
	var driver string
	e.String(&driver, "STORAGE_DRIVER")
	if driver != "" {
		cfg.Driver = StorageDriver(strings.ToLower(driver))
	}
	e.String(&cfg.PostgresDSN, "POSTGRES_DSN")
	e.Bool(&cfg.AutoMigrate, "POSTGRES_AUTO_MIGRATE")
}

// Broker читает BROKER, KAFKA_BROKERS, KAFKA_TOPIC, RABBITMQ_URL и RABBITMQ_EXCHANGE.
func (e *Env) Broker(cfg *BrokerConfig) {
	var kind string
	e.String(&kind, "BROKER")
	if kind != "" {
		cfg.Kind = BrokerKind(strings.ToLower(kind))
	}
	e.List(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	e.String(&cfg.KafkaTopic, "KAFKA_TOPIC")
	e.String(&cfg.RabbitURL, "RABBITMQ_URL")
	e.String(&cfg.RabbitExchange, "RABBITMQ_EXCHANGE")
}

// Outbox читает OUTBOX_* параметры воркера.
func (e *Env) Outbox(cfg *OutboxConfig) {
	e.Duration(&cfg.PollInterval, "OUTBOX_POLL_INTERVAL")
	e.Int(&cfg.BatchSize, "OUTBOX_BATCH_SIZE")
	e.Int(&cfg.MaxAttempts, "OUTBOX_MAX_ATTEMPTS")
	e.Duration(&cfg.RetryDelay, "OUTBOX_RETRY_DELAY")
	e.Int(&cfg.MaxPending, "OUTBOX_MAX_PENDING")
}

// Err возвращает все ошибки разбора.
func (e *Env) Err() error {
	return errors.Join(e.errs...)
}
