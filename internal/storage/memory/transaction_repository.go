package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type transactionRepositoryInMemory struct {
	mu        sync.RWMutex
	byPayment map[string][]domain.Transaction
}

// NewTransactionRepository создаёт in-memory журнал операций.
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepositoryInMemory{byPayment: make(map[string][]domain.Transaction)}
}

func (r *transactionRepositoryInMemory) Append(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byPayment[tx.PaymentID] = append(r.byPayment[tx.PaymentID], tx)
	return nil
}

// ListByPayment возвращает записи в порядке добавления.
func (r *transactionRepositoryInMemory) ListByPayment(_ context.Context, paymentID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.byPayment[paymentID]
	out := make([]domain.Transaction, len(src))
	copy(out, src)
	return out, nil
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)
