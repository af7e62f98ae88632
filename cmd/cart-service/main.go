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

func readConfig(env *app.Env) (app.CartConfig, error) {
	cfg := app.DefaultCartConfig()
	env.String(&cfg.HTTPAddr, "HTTP_ADDR")
	env.String(&cfg.RedisURL, "REDIS_URL")
	env.Duration(&cfg.CartTTL, "CART_TTL")
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

	log.WithFields(log.Fields{"http_addr": cfg.HTTPAddr, "redis": cfg.RedisURL != ""}).Info("запускаем CartService")

	if err := app.RunCartService(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("сервис завершился с ошибкой")
	}

	log.Info("CartService остановлен")
}
