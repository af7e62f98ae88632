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

// readConfig собирает конфигурацию сервиса платежей из значений по умолчанию и окружения.
func readConfig(env *app.Env) (app.PaymentConfig, error) {
	cfg := app.DefaultPaymentConfig()
	env.String(&cfg.GRPCAddr, "GRPC_ADDR")
	env.String(&cfg.MetricsAddr, "METRICS_ADDR")
	env.Storage(&cfg.Storage)
	env.Broker(&cfg.Broker)
	env.Outbox(&cfg.Outbox)
	env.String(&cfg.OrderServiceAddr, "ORDER_SERVICE_ADDR")
	env.Duration(&cfg.FinalizeTimeout, "FINALIZE_TIMEOUT")
	env.String(&cfg.Gateway, "PAYMENT_GATEWAY")
	env.Duration(&cfg.SimulatedLatency, "SIMULATED_LATENCY")
	env.String(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	env.String(&cfg.StripeBaseURL, "STRIPE_BASE_URL")
	env.Duration(&cfg.ChargeTimeout, "CHARGE_TIMEOUT")
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
		"order_addr":   cfg.OrderServiceAddr,
		"gateway":      cfg.Gateway,
	}).Info("запускаем PaymentService")

	if err := app.RunPaymentService(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("сервис завершился с ошибкой")
	}

	log.Info("PaymentService остановлен")
}
