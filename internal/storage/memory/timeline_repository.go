package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// timelineRepository держит историю заказов в памяти процесса.
type timelineRepository struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepository{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.byOrder[event.OrderID]
	at := len(history)
	for at > 0 && history[at-1].Occurred.After(event.Occurred) {
		at--
	}
	r.byOrder[event.OrderID] = slices.Insert(history, at, event)
	return nil
}

func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
