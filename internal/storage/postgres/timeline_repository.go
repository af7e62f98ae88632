package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

// Append дописывает событие; пустое время события заменяется текущим.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, status, reason, occurred) VALUES ($1, $2, $3, $4, $5)`,
		event.OrderID, event.Type, string(event.Status), event.Reason, event.Occurred.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append timeline event %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List отдаёт историю заказа от старых событий к новым; равные по времени идут в порядке записи.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var status string
		if err := rows.Scan(&event.Type, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of order %s: %w", orderID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
