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

func readConfig(env *app.Env) (app.InventoryConfig, error) {
	cfg := app.DefaultInventoryConfig()
	env.String(&cfg.HTTPAddr, "HTTP_ADDR")
	env.Storage(&cfg.Storage)
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

	log.WithFields(log.Fields{"http_addr": cfg.HTTPAddr, "storage": cfg.Storage.Driver}).Info("запускаем InventoryService")

	if err := app.RunInventoryService(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("сервис завершился с ошибкой")
	}

	log.Info("InventoryService остановлен")
}
