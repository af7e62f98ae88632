package main

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/app"
)

func TestReadConfig(t *testing.T) {
	values := map[string]string{
		"CHECKOUT_REDIS_URL": "redis://localhost:6379/0",
		"CHECKOUT_CART_TTL":  "48h",
	}
	cfg, err := readConfig(app.NewEnvFrom(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" || cfg.CartTTL != 48*time.Hour {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.HTTPAddr != app.DefaultCartConfig().HTTPAddr {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}

	values["CHECKOUT_CART_TTL"] = "a week"
	if _, err := readConfig(app.NewEnvFrom(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})); err == nil {
		t.Fatal("expected error for invalid ttl")
	}
}
