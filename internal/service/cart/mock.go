package cart

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockService: заглушка CartService для тестов саги.
type MockService struct {
	mu sync.Mutex

	Lines    map[string][]domain.CartLine
	LinesErr error
	ClearErr error

	ClearCalls []string
}

// NewMockService возвращает mock с пустыми корзинами.
func NewMockService() *MockService {
	return &MockService{Lines: make(map[string][]domain.CartLine)}
}

// SetLines задаёт содержимое корзины пользователя.
func (m *MockService) SetLines(userID string, lines ...domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range lines {
		lines[i].UserID = userID
	}
	m.Lines[userID] = lines
}

func (m *MockService) GetCartLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LinesErr != nil {
		return nil, m.LinesErr
	}
	return append([]domain.CartLine(nil), m.Lines[userID]...), nil
}

// ClearCart записывает вызов; при ClearErr корзина не очищается.
func (m *MockService) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls = append(m.ClearCalls, userID)
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.Lines, userID)
	return nil
}

// Cleared возвращает число вызовов ClearCart.
func (m *MockService) Cleared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ClearCalls)
}

var _ domain.CartService = (*MockService)(nil)
