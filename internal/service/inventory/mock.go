package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockService: конфигурируемая заглушка InventoryService для тестов.
// Списания не меняют Lots: заглушка только записывает вызовы.
type MockService struct {
	mu sync.Mutex

	Lots map[string][]domain.Lot
	// ListErr возвращается из GetAvailableLots.
	ListErr error
	// DecrementErr по lot_id; ошибка возвращается на каждый вызов.
	DecrementErr map[string]error

	ListCalls  int
	Decrements []domain.DecrementRequest
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Lots:         make(map[string][]domain.Lot),
		DecrementErr: make(map[string]error),
	}
}

// AddLots добавляет партии товара.
func (m *MockService) AddLots(lots ...domain.Lot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lot := range lots {
		m.Lots[lot.ItemID] = append(m.Lots[lot.ItemID], lot)
	}
}

// FailDecrement настраивает ошибку списания для партии; nil снимает её.
func (m *MockService) FailDecrement(lotID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.DecrementErr, lotID)
		return
	}
	m.DecrementErr[lotID] = err
}

// GetAvailableLots возвращает партии с положительным остатком по сроку годности.
func (m *MockService) GetAvailableLots(_ context.Context, itemID string) ([]domain.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.Lot, 0, len(m.Lots[itemID]))
	for _, lot := range m.Lots[itemID] {
		if lot.QtyAvailable > 0 {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DecrementLot записывает вызов и возвращает настроенную ошибку.
func (m *MockService) DecrementLot(_ context.Context, req domain.DecrementRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Decrements = append(m.Decrements, req)
	return m.DecrementErr[req.LotID]
}

// DecrementCalls возвращает копию записанных списаний.
func (m *MockService) DecrementCalls() []domain.DecrementRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DecrementRequest(nil), m.Decrements...)
}

var _ domain.InventoryService = (*MockService)(nil)
