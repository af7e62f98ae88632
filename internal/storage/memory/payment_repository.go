package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// paymentRepositoryInMemory хранит платежи с уникальностью по order_id.
type paymentRepositoryInMemory struct {
	mu      sync.RWMutex
	byID    map[string]domain.Payment
	byOrder map[string]string
}

// NewPaymentRepository создаёт in-memory реализацию PaymentRepository.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		byID:    make(map[string]domain.Payment),
		byOrder: make(map[string]string),
	}
}

// CreateIfAbsent атомарно вставляет платёж или возвращает уже существующий для заказа.
func (r *paymentRepositoryInMemory) CreateIfAbsent(_ context.Context, payment domain.Payment) (domain.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byOrder[payment.OrderID]; ok {
		return clonePayment(r.byID[id]), false, nil
	}
	payment.Version = 1
	r.byID[payment.ID] = clonePayment(payment)
	r.byOrder[payment.OrderID] = payment.ID
	return clonePayment(payment), true, nil
}

func (r *paymentRepositoryInMemory) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *paymentRepositoryInMemory) GetByOrderID(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(r.byID[id]), nil
}

// ListByUser возвращает платежи пользователя, новые первыми.
func (r *paymentRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, p := range r.byID {
		if p.UserID == userID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save обновляет платёж, если версия совпадает с сохранённой.
func (r *paymentRepositoryInMemory) Save(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.Version != payment.Version {
		return domain.ErrPaymentVersionConflict
	}
	payment.OrderID = current.OrderID
	payment.Version++
	r.byID[payment.ID] = clonePayment(payment)
	return nil
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.PaidAt != nil {
		t := *p.PaidAt
		p.PaidAt = &t
	}
	return p
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
