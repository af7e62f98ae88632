package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	cartclient "github.com/vladislavdragonenkov/checkout/internal/client/cart"
	inventoryclient "github.com/vladislavdragonenkov/checkout/internal/client/inventory"
	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/checkout/internal/service/grpc"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
	"github.com/vladislavdragonenkov/checkout/internal/service/saga"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// RunOrderService поднимает gRPC сервис заказов вместе с воркерами сверки, outbox
// и очистки ключей идемпотентности. Возвращается после отмены ctx.
func RunOrderService(ctx context.Context, cfg OrderConfig) error {
	logger := componentLogger("order-service")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	repos, err := openRepositories(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRepositories(repos, logger)

	broker, err := openBroker(cfg.Broker, "checkout-order-service", logger)
	if err != nil {
		return err
	}
	defer broker.close()

	inventory := inventoryclient.New(inventoryclient.Config{
		BaseURL: cfg.InventoryURL,
		Timeout: cfg.CallTimeout,
		Breaker: resilience.DefaultBreakerSettings(),
	}, logger.WithField("client", "inventory"))
	carts := cartclient.New(cartclient.Config{
		BaseURL: cfg.CartURL,
		Timeout: cfg.CallTimeout,
		Breaker: resilience.DefaultBreakerSettings(),
	}, logger.WithField("client", "cart"))

	opts := []saga.Option{
		saga.WithMetrics(metrics.NewSagaMetrics()),
		saga.WithCallTimeout(cfg.CallTimeout),
	}
	if broker.producer != nil {
		opts = append(opts, saga.WithKafkaProducer(broker.producer))
	}
	orchestrator := saga.NewOrchestrator(saga.Dependencies{
		Orders:    repos.orders,
		Outbox:    repos.outbox,
		Timeline:  repos.timeline,
		Tasks:     repos.tasks,
		Inventory: inventory,
		Cart:      carts,
	}, logger.WithField("layer", "saga"), opts...)

	grpcServer, grpcMetrics, healthServer := newGRPCServer(logger)
	checkoutv1.RegisterOrderServiceServer(grpcServer, grpcsvc.NewOrderService(orchestrator, repos.idempotency, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", repos.ping))
	healthHandler.RegisterChecker("inventory", breakerChecker("inventory", inventory.State))
	healthHandler.RegisterChecker("cart", breakerChecker("cart", carts.State))
	healthHandler.RegisterChecker("outbox", outboxBacklogChecker(repos, cfg.Outbox.MaxPending))
	healthHandler.RegisterChecker("downstream_tasks", healthcheck.NewThresholdChecker("downstream_tasks", cfg.MaxDeadTasks, func(ctx context.Context) (int, error) {
		stats, err := repos.tasks.Stats(ctx)
		return stats.DeadCount, err
	}))

	workers := &background{}
	reconcileBackoff := reconcile.DefaultBackoff()
	reconcileBackoff.MaxAttempts = cfg.ReconcileMaxAttempts
	workers.Go(ctx, reconcile.NewWorker(reconcile.Dependencies{
		Tasks:     repos.tasks,
		Outbox:    repos.outbox,
		Inventory: inventory,
		Cart:      carts,
	},
		reconcile.WithLogger(logger.WithField("worker", "reconcile")),
		reconcile.WithPollInterval(cfg.ReconcileInterval),
		reconcile.WithBackoff(reconcileBackoff),
		reconcile.WithCallTimeout(cfg.CallTimeout),
	).Run)
	workers.Go(ctx, idempotency.NewCleanupWorker(repos.idempotency,
		idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	).Run)
	startOutboxWorker(ctx, workers, repos, broker, cfg.Outbox, logger)

	if cfg.ConsumePaymentEvents && broker.producer != nil {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Broker.KafkaBrokers,
			GroupID: cfg.ConsumerGroup,
			Topics:  []string{kafka.TopicPaymentEvents},
		}, kafka.NewPaymentEventsHandler(orchestrator, logger.WithField("consumer", "payment-events")), broker.producer)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop payment events consumer")
			}
		}()
	}

	opsServer := startOpsServer(cfg.MetricsAddr, healthHandler, logger)
	defer shutdownHTTP(opsServer, logger)

	err = serveGRPC(ctx, cfg.GRPCAddr, grpcServer, healthServer, logger)
	cancel()
	workers.Wait()
	return ignoreCanceled(err)
}

// startOutboxWorker запускает публикацию outbox, если брокер настроен.
func startOutboxWorker(ctx context.Context, workers *background, repos *repositories, broker *publishing, cfg OutboxConfig, logger *log.Entry) {
	if broker.publisher == nil {
		return
	}
	opts := []outbox.Option{
		outbox.WithLogger(logger.WithField("worker", "outbox")),
		outbox.WithPollInterval(cfg.PollInterval),
		outbox.WithBatchSize(cfg.BatchSize),
		outbox.WithMaxAttempts(cfg.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.RetryDelay),
	}
	if broker.dlq != nil {
		opts = append(opts, outbox.WithDLQPublisher(broker.dlq))
	}
	workers.Go(ctx, outbox.NewWorker(repos.outbox, broker.publisher, opts...).Run)
}

func outboxBacklogChecker(repos *repositories, maxPending int) healthcheck.Checker {
	return healthcheck.NewThresholdChecker("outbox", maxPending, func(ctx context.Context) (int, error) {
		stats, err := repos.outbox.Stats(ctx)
		return stats.PendingCount, err
	})
}

func closeRepositories(repos *repositories, logger *log.Entry) {
	if err := repos.close(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
