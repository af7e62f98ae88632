package payment

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockGateway: конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	mu sync.Mutex

	ChargeResult domain.ChargeResult
	ChargeErr    error
	RefundResult domain.ChargeResult
	RefundErr    error
	// Block, если задан, держит Charge до закрытия канала или отмены контекста.
	Block chan struct{}

	Charges []domain.ChargeRequest
	Refunds []domain.Payment
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ChargeResult: domain.ChargeResult{ExternalRef: "ext-charge", Status: domain.PaymentStatusSuccess},
		RefundResult: domain.ChargeResult{ExternalRef: "ext-refund", Status: domain.PaymentStatusRefunded},
	}
}

// Charge записывает вызов и возвращает настроенный результат.
func (m *MockGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	m.mu.Lock()
	m.Charges = append(m.Charges, req)
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.ChargeResult{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChargeResult, m.ChargeErr
}

// Refund записывает вызов и возвращает настроенный результат.
func (m *MockGateway) Refund(_ context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refunds = append(m.Refunds, payment)
	return m.RefundResult, m.RefundErr
}

// ChargeCalls возвращает число вызовов Charge.
func (m *MockGateway) ChargeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Charges)
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
