package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// repositories: набор хранилищ одного процесса; каждый сервис берёт нужные ему.
type repositories struct {
	orders       domain.OrderRepository
	outbox       domain.OutboxRepository
	timeline     domain.TimelineRepository
	tasks        domain.TaskRepository
	idempotency  domain.IdempotencyRepository
	payments     domain.PaymentRepository
	transactions domain.TransactionRepository
	lots         domain.LotRepository

	ping  func(ctx context.Context) error
	close func() error
}

func openRepositories(ctx context.Context, cfg StorageConfig, logger *log.Entry) (*repositories, error) {
	switch cfg.Driver {
	case "", StorageDriverMemory:
		logger.Info("storage driver: memory")
		return &repositories{
			orders:       memory.NewOrderRepository(),
			outbox:       memory.NewOutboxRepository(),
			timeline:     memory.NewTimelineRepository(),
			tasks:        memory.NewTaskRepository(),
			idempotency:  memory.NewIdempotencyRepository(),
			payments:     memory.NewPaymentRepository(),
			transactions: memory.NewTransactionRepository(),
			lots:         memory.NewLotRepository(),
			ping:         func(context.Context) error { return nil },
			close:        func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.AutoMigrate).Info("storage driver: postgres")
		return &repositories{
			orders:       postgres.NewOrderRepository(store),
			outbox:       postgres.NewOutboxRepository(store),
			timeline:     postgres.NewTimelineRepository(store),
			tasks:        postgres.NewTaskRepository(store),
			idempotency:  postgres.NewIdempotencyRepository(store),
			payments:     postgres.NewPaymentRepository(store),
			transactions: postgres.NewTransactionRepository(store),
			lots:         postgres.NewLotRepository(store),
			ping:         store.Ping,
			close:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
