package main

import (
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/app"
)

func TestReadConfig(t *testing.T) {
	values := map[string]string{
		"CHECKOUT_HTTP_ADDR":      ":9081",
		"CHECKOUT_STORAGE_DRIVER": "postgres",
		"CHECKOUT_POSTGRES_DSN":   "postgres://checkout@db/inventory",
	}
	cfg, err := readConfig(app.NewEnvFrom(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9081" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.Storage.Driver != app.StorageDriverPostgres || cfg.Storage.PostgresDSN != "postgres://checkout@db/inventory" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if !cfg.Storage.AutoMigrate {
		t.Fatal("auto migrate must stay enabled by default")
	}
}
