package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/client/orders"
	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/checkout/internal/service/grpc"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// RunPaymentService поднимает gRPC сервис платежей. Успешный платёж финализирует
// заказ синхронным вызовом сервиса заказов и событием PaymentSucceeded в outbox.
func RunPaymentService(ctx context.Context, cfg PaymentConfig) error {
	logger := componentLogger("payment-service")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gateway, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}

	repos, err := openRepositories(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRepositories(repos, logger)

	broker, err := openBroker(cfg.Broker, "checkout-payment-service", logger)
	if err != nil {
		return err
	}
	defer broker.close()

	finalizer, err := orders.Dial(orders.Config{
		Address: cfg.OrderServiceAddr,
		Timeout: cfg.FinalizeTimeout,
		Breaker: resilience.DefaultBreakerSettings(),
	}, logger.WithField("client", "orders"))
	if err != nil {
		return err
	}
	defer func() {
		if err := finalizer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close order service connection")
		}
	}()

	coordinator := payment.NewCoordinator(payment.Dependencies{
		Payments:     repos.payments,
		Transactions: repos.transactions,
		Outbox:       repos.outbox,
		Gateway:      gateway,
		Finalizer:    finalizer,
		Orders:       finalizer,
	}, logger.WithField("layer", "payment"),
		payment.WithMetrics(metrics.NewSagaMetrics()),
		payment.WithChargeTimeout(cfg.ChargeTimeout),
		payment.WithFinalizeTimeout(cfg.FinalizeTimeout),
	)

	grpcServer, grpcMetrics, healthServer := newGRPCServer(logger)
	checkoutv1.RegisterPaymentServiceServer(grpcServer, grpcsvc.NewPaymentService(coordinator, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", repos.ping))
	healthHandler.RegisterChecker("gateway", breakerChecker("gateway", gateway.State))
	healthHandler.RegisterChecker("orders", breakerChecker("orders", finalizer.State))
	healthHandler.RegisterChecker("outbox", outboxBacklogChecker(repos, cfg.Outbox.MaxPending))

	workers := &background{}
	startOutboxWorker(ctx, workers, repos, broker, cfg.Outbox, logger)

	opsServer := startOpsServer(cfg.MetricsAddr, healthHandler, logger)
	defer shutdownHTTP(opsServer, logger)

	err = serveGRPC(ctx, cfg.GRPCAddr, grpcServer, healthServer, logger)
	cancel()
	workers.Wait()
	return ignoreCanceled(err)
}

// newPaymentGateway выбирает провайдера и оборачивает его в circuit breaker.
func newPaymentGateway(cfg PaymentConfig, logger *log.Entry) (*payment.BreakerGateway, error) {
	var gateway domain.PaymentGateway
	switch cfg.Gateway {
	case "", GatewaySimulated:
		gateway = payment.NewSimulatedGateway(cfg.SimulatedLatency)
	case GatewayStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("stripe gateway requires a secret key")
		}
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			BaseURL:   cfg.StripeBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.Gateway)
	}
	logger.WithField("gateway", cfg.Gateway).Info("payment gateway selected")
	return payment.NewBreakerGateway(gateway, resilience.DefaultBreakerSettings(), logger.WithField("client", "gateway")), nil
}
