package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/httpx"
	"github.com/vladislavdragonenkov/checkout/internal/service/inventory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/redisstore"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// RunInventoryService поднимает HTTP API склада.
func RunInventoryService(ctx context.Context, cfg InventoryConfig) error {
	logger := componentLogger("inventory-service")

	repos, err := openRepositories(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRepositories(repos, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", repos.ping))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newInventoryRouter(repos.lots, healthHandler, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return ignoreCanceled(serveHTTP(ctx, srv, logger))
}

func newInventoryRouter(lots domain.LotRepository, healthHandler *healthcheck.Handler, logger *log.Entry) *gin.Engine {
	router := httpx.NewRouter("inventory", logger)
	httpx.RegisterOps(router, healthHandler)
	inventory.NewHandler(lots, logger.WithField("layer", "http")).RegisterRoutes(router)
	return router
}

// RunCartService поднимает HTTP API корзины поверх Redis или памяти процесса.
func RunCartService(ctx context.Context, cfg CartConfig) error {
	logger := componentLogger("cart-service")

	carts, ping, closeStore, err := openCartStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("failed to close cart storage")
		}
	}()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", ping))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newCartRouter(carts, healthHandler, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return ignoreCanceled(serveHTTP(ctx, srv, logger))
}

func newCartRouter(carts domain.CartRepository, healthHandler *healthcheck.Handler, logger *log.Entry) *gin.Engine {
	router := httpx.NewRouter("cart", logger)
	httpx.RegisterOps(router, healthHandler)
	cart.NewHandler(carts, logger.WithField("layer", "http")).RegisterRoutes(router)
	return router
}

func openCartStore(ctx context.Context, cfg CartConfig, logger *log.Entry) (domain.CartRepository, func(context.Context) error, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Info("cart storage: memory")
		return memory.NewCartRepository(), func(context.Context) error { return nil }, func() error { return nil }, nil
	}
	client, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := redisstore.NewCartRepository(client, cfg.CartTTL)
	logger.WithField("ttl", cfg.CartTTL).Info("cart storage: redis")
	return repo, repo.Ping, client.Close, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
