package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
)

// readConfig собирает конфигурацию сервиса заказов из значений по умолчанию и окружения.
func readConfig(env *app.Env) (app.OrderConfig, error) {
	cfg := app.DefaultOrderConfig()
	env.String(&cfg.GRPCAddr, "GRPC_ADDR")
	env.String(&cfg.MetricsAddr, "METRICS_ADDR")
	env.Storage(&cfg.Storage)
	env.Broker(&cfg.Broker)
	env.Outbox(&cfg.Outbox)
	env.String(&cfg.InventoryURL, "INVENTORY_URL")
	env.String(&cfg.CartURL, "CART_URL")
	env.Duration(&cfg.CallTimeout, "CALL_TIMEOUT")
	env.Duration(&cfg.ReconcileInterval, "RECONCILE_INTERVAL")
	env.Int(&cfg.ReconcileMaxAttempts, "RECONCILE_MAX_ATTEMPTS")
	env.Int(&cfg.MaxDeadTasks, "RECONCILE_MAX_DEAD")
	env.Duration(&cfg.IdempotencyCleanupInterval, "IDEMPOTENCY_CLEANUP_INTERVAL")
	env.Int(&cfg.IdempotencyCleanupBatchSize, "IDEMPOTENCY_CLEANUP_BATCH_SIZE")
	env.Bool(&cfg.ConsumePaymentEvents, "CONSUME_PAYMENT_EVENTS")
	env.String(&cfg.ConsumerGroup, "KAFKA_CONSUMER_GROUP")
	return cfg, env.Err()
}

func main() {
	_ = godotenv.Load()
	env := app.NewEnv()
	app.SetupLogger(env)

	cfg, err := readConfig(env)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.Storage.Driver,
		"broker":       cfg.Broker.Kind,
	}).Info("запускаем OrderService")

	if err := app.RunOrderService(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("сервис завершился с ошибкой")
	}

	log.Info("OrderService остановлен")
}
