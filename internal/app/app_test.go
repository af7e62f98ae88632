package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func testLogger(name string) *log.Entry {
	return log.WithField("test", name)
}

func TestDefaultConfigs(t *testing.T) {
	order := DefaultOrderConfig()
	if order.GRPCAddr != ":50051" || order.MetricsAddr != ":9090" {
		t.Fatalf("unexpected order addresses: %s %s", order.GRPCAddr, order.MetricsAddr)
	}
	if order.Storage.Driver != StorageDriverMemory || !order.Storage.AutoMigrate {
		t.Fatalf("unexpected storage defaults: %+v", order.Storage)
	}
	if order.Broker.Kind != BrokerNone || order.Broker.KafkaTopic != kafka.TopicOrderEvents {
		t.Fatalf("unexpected broker defaults: %+v", order.Broker)
	}
	if order.ReconcileMaxAttempts <= 0 || order.ReconcileInterval <= 0 {
		t.Fatal("reconcile worker must be enabled by default")
	}
	if order.IdempotencyCleanupInterval <= 0 || order.IdempotencyCleanupBatchSize <= 0 {
		t.Fatal("idempotency cleanup must be enabled by default")
	}
	if order.Outbox.PollInterval <= 0 || order.Outbox.BatchSize <= 0 || order.Outbox.MaxAttempts <= 0 || order.Outbox.MaxPending <= 0 {
		t.Fatalf("unexpected outbox defaults: %+v", order.Outbox)
	}

	payment := DefaultPaymentConfig()
	if payment.Gateway != GatewaySimulated {
		t.Fatalf("expected simulated gateway by default, got %s", payment.Gateway)
	}
	if payment.Broker.KafkaTopic != kafka.TopicPaymentEvents {
		t.Fatalf("payment events must go to %s, got %s", kafka.TopicPaymentEvents, payment.Broker.KafkaTopic)
	}
	if payment.OrderServiceAddr == "" || payment.ChargeTimeout <= 0 {
		t.Fatalf("unexpected payment defaults: %+v", payment)
	}

	if DefaultInventoryConfig().HTTPAddr != ":8081" || DefaultCartConfig().HTTPAddr != ":8082" {
		t.Fatal("unexpected http service addresses")
	}
	if DefaultCartConfig().RedisURL != "" {
		t.Fatal("cart service must default to in-memory storage")
	}
}

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestEnvOverrides(t *testing.T) {
	env := NewEnvFrom(mapLookup(map[string]string{
		"CHECKOUT_GRPC_ADDR":             ":6000",
		"CHECKOUT_STORAGE_DRIVER":        "Postgres",
		"CHECKOUT_POSTGRES_DSN":          "postgres://checkout@db/checkout",
		"CHECKOUT_POSTGRES_AUTO_MIGRATE": "false",
		"CHECKOUT_BROKER":                "kafka",
		"CHECKOUT_KAFKA_BROKERS":         "k1:9092, k2:9092,",
		"CHECKOUT_OUTBOX_BATCH_SIZE":     "25",
		"CHECKOUT_OUTBOX_POLL_INTERVAL":  "250ms",
		"CHECKOUT_CONSUME_EVENTS":        "  ",
	}))

	cfg := DefaultOrderConfig()
	env.String(&cfg.GRPCAddr, "GRPC_ADDR")
	env.Storage(&cfg.Storage)
	env.Broker(&cfg.Broker)
	env.Outbox(&cfg.Outbox)
	env.Bool(&cfg.ConsumePaymentEvents, "CONSUME_EVENTS")
	if err := env.Err(); err != nil {
		t.Fatalf("unexpected env error: %v", err)
	}

	if cfg.GRPCAddr != ":6000" {
		t.Fatalf("expected grpc addr override, got %s", cfg.GRPCAddr)
	}
	if cfg.Storage.Driver != StorageDriverPostgres || cfg.Storage.AutoMigrate {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Broker.Kind != BrokerKafka || len(cfg.Broker.KafkaBrokers) != 2 || cfg.Broker.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected broker config: %+v", cfg.Broker)
	}
	if cfg.Outbox.BatchSize != 25 || cfg.Outbox.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected outbox config: %+v", cfg.Outbox)
	}
	if !cfg.ConsumePaymentEvents {
		t.Fatal("blank variable must keep the default")
	}
}

func TestEnvCollectsParseErrors(t *testing.T) {
	env := NewEnvFrom(mapLookup(map[string]string{
		"CHECKOUT_OUTBOX_BATCH_SIZE":    "many",
		"CHECKOUT_OUTBOX_POLL_INTERVAL": "soon",
	}))
	cfg := DefaultOutboxConfig()
	env.Outbox(&cfg)

	err := env.Err()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"CHECKOUT_OUTBOX_BATCH_SIZE", "CHECKOUT_OUTBOX_POLL_INTERVAL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
	if cfg.BatchSize != DefaultOutboxConfig().BatchSize {
		t.Fatal("invalid value must not override the default")
	}
}

func TestOpenRepositories_Memory(t *testing.T) {
	repos, err := openRepositories(context.Background(), StorageConfig{Driver: StorageDriverMemory}, testLogger("memory"))
	if err != nil {
		t.Fatalf("openRepositories(memory) failed: %v", err)
	}
	if repos.orders == nil || repos.outbox == nil || repos.timeline == nil || repos.tasks == nil ||
		repos.idempotency == nil || repos.payments == nil || repos.transactions == nil || repos.lots == nil {
		t.Fatalf("memory storage must provide every repository: %+v", repos)
	}
	if err := repos.ping(context.Background()); err != nil {
		t.Fatalf("memory ping failed: %v", err)
	}
	if err := repos.close(); err != nil {
		t.Fatalf("memory close failed: %v", err)
	}
}

func TestOpenRepositories_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  StorageConfig
	}{
		{"postgres without dsn", StorageConfig{Driver: StorageDriverPostgres}},
		{"unsupported driver", StorageConfig{Driver: "sqlite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := openRepositories(context.Background(), tt.cfg, testLogger(tt.name)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOpenBroker(t *testing.T) {
	none, err := openBroker(BrokerConfig{Kind: BrokerNone}, "test", testLogger("broker"))
	if err != nil {
		t.Fatalf("openBroker(none) failed: %v", err)
	}
	if none.publisher != nil || none.producer != nil {
		t.Fatal("no publisher expected without a broker")
	}
	none.close()

	tests := []struct {
		name string
		cfg  BrokerConfig
	}{
		{"kafka without brokers", BrokerConfig{Kind: BrokerKafka}},
		{"rabbitmq without url", BrokerConfig{Kind: BrokerRabbitMQ}},
		{"unsupported", BrokerConfig{Kind: "nats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := openBroker(tt.cfg, "test", testLogger(tt.name)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewPaymentGateway(t *testing.T) {
	logger := testLogger("gateway")

	cfg := DefaultPaymentConfig()
	gateway, err := newPaymentGateway(cfg, logger)
	if err != nil {
		t.Fatalf("simulated gateway: %v", err)
	}
	if gateway.State() != "closed" {
		t.Fatalf("expected closed breaker, got %s", gateway.State())
	}

	cfg.Gateway = GatewayStripe
	if _, err := newPaymentGateway(cfg, logger); err == nil {
		t.Fatal("stripe without a secret key must fail")
	}
	cfg.StripeSecretKey = "sk_test_123"
	if _, err := newPaymentGateway(cfg, logger); err != nil {
		t.Fatalf("stripe gateway: %v", err)
	}

	cfg.Gateway = "paypal"
	if _, err := newPaymentGateway(cfg, logger); err == nil {
		t.Fatal("unsupported gateway must fail")
	}
}

func TestBreakerChecker(t *testing.T) {
	state := "closed"
	checker := breakerChecker("inventory", func() string { return state })
	if got := checker.Check(context.Background()).Status; got != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
	state = "half-open"
	if got := checker.Check(context.Background()).Status; got != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
	state = "open"
	if got := checker.Check(context.Background()).Status; got != healthcheck.StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
}

func serve(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInventoryRouter(t *testing.T) {
	router := newInventoryRouter(memory.NewLotRepository(), healthcheck.NewHandler("test"), testLogger("inventory"))

	rec := serve(t, router, http.MethodPost, "/api/v1/lots", `{"id":"L1","item_id":"A","expires_at":"2027-01-01T00:00:00Z","quantity":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create lot: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, router, http.MethodGet, "/api/v1/items/A/lots", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list lots: expected 200, got %d", rec.Code)
	}
	var lots checkoutv1.ListLotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &lots); err != nil {
		t.Fatalf("decode lots: %v", err)
	}
	if len(lots.Lots) != 1 || lots.Lots[0].QtyAvailable != 5 {
		t.Fatalf("unexpected lots: %+v", lots.Lots)
	}

	for _, path := range []string{"/livez", "/readyz", "/healthz"} {
		if rec := serve(t, router, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestCartRouter(t *testing.T) {
	router := newCartRouter(memory.NewCartRepository(), healthcheck.NewHandler("test"), testLogger("cart"))

	rec := serve(t, router, http.MethodPut, "/api/v1/carts/u1/lines/A", `{"qty":2,"unit_price_minor":150}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put line: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cart checkoutv1.CartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if cart.TotalMinor != 300 || len(cart.Lines) != 1 {
		t.Fatalf("unexpected cart: %+v", cart)
	}

	if rec := serve(t, router, http.MethodDelete, "/api/v1/carts/u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear cart: expected 204, got %d", rec.Code)
	}
}

func TestOpenCartStore_MemoryWithoutRedisURL(t *testing.T) {
	carts, ping, closeStore, err := openCartStore(context.Background(), DefaultCartConfig(), testLogger("cart-store"))
	if err != nil {
		t.Fatalf("openCartStore failed: %v", err)
	}
	if carts == nil {
		t.Fatal("expected cart repository")
	}
	if err := ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := closeStore(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
