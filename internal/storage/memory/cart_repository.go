package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]map[string]domain.CartLine
}

// NewCartRepository создаёт in-memory корзины (для тестов и локального запуска без Redis).
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]map[string]domain.CartLine)}
}

// Lines возвращает строки корзины в порядке добавления.
func (r *cartRepositoryInMemory) Lines(_ context.Context, userID string) ([]domain.CartLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart := r.carts[userID]
	lines := make([]domain.CartLine, 0, len(cart))
	for _, line := range cart {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ItemID < lines[j].ItemID
	})
	return lines, nil
}

func (r *cartRepositoryInMemory) PutLine(_ context.Context, line domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[line.UserID]
	if !ok {
		cart = make(map[string]domain.CartLine)
		r.carts[line.UserID] = cart
	}
	if line.Qty <= 0 {
		delete(cart, line.ItemID)
		return nil
	}
	if existing, ok := cart[line.ItemID]; ok {
		line.AddedAt = existing.AddedAt
	}
	cart[line.ItemID] = line
	return nil
}

func (r *cartRepositoryInMemory) RemoveLine(_ context.Context, userID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts[userID], itemID)
	return nil
}

func (r *cartRepositoryInMemory) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, userID)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
