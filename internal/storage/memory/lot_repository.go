package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// lotRepositoryInMemory хранит партии склада. Все изменения остатка идут под одной блокировкой,
// поэтому проверка и списание выполняются атомарно.
type lotRepositoryInMemory struct {
	mu         sync.Mutex
	lots       map[string]domain.Lot
	references map[string]struct{}
}

// NewLotRepository создаёт in-memory реализацию LotRepository.
func NewLotRepository() domain.LotRepository {
	return &lotRepositoryInMemory{
		lots:       make(map[string]domain.Lot),
		references: make(map[string]struct{}),
	}
}

func (r *lotRepositoryInMemory) Create(_ context.Context, lot domain.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lots[lot.ID]; exists {
		return domain.ErrLotExists
	}
	for _, existing := range r.lots {
		if existing.ItemID == lot.ItemID && existing.BatchNo != "" && existing.BatchNo == lot.BatchNo {
			return domain.ErrLotExists
		}
	}
	r.lots[lot.ID] = lot
	return nil
}

func (r *lotRepositoryInMemory) Get(_ context.Context, id string) (domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lot, ok := r.lots[id]
	if !ok {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	return lot, nil
}

// ListAvailable возвращает партии товара с положительным остатком по сроку годности.
func (r *lotRepositoryInMemory) ListAvailable(_ context.Context, itemID string) ([]domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Lot, 0)
	for _, lot := range r.lots {
		if lot.ItemID == itemID && lot.QtyAvailable > 0 {
			result = append(result, lot)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Decrement списывает остаток, только если его хватает; повтор по тому же Reference игнорируется.
func (r *lotRepositoryInMemory) Decrement(_ context.Context, req domain.DecrementRequest) error {
	if req.Qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Reference != "" {
		if _, applied := r.references[req.Reference]; applied {
			return nil
		}
	}
	lot, ok := r.lots[req.LotID]
	if !ok {
		return domain.ErrLotNotFound
	}
	if lot.QtyAvailable < req.Qty {
		return domain.ErrInsufficientLotQuantity
	}
	lot.QtyAvailable -= req.Qty
	lot.Version++
	lot.UpdatedAt = time.Now().UTC()
	r.lots[lot.ID] = lot
	if req.Reference != "" {
		r.references[req.Reference] = struct{}{}
	}
	return nil
}

var _ domain.LotRepository = (*lotRepositoryInMemory)(nil)
