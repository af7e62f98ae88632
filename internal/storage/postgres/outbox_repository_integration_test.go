package postgres

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func orderEvent(aggregateID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + aggregateID + `"}`),
	}
}

func (s *storeSuite) TestOutboxPendingFIFOAndSettle() {
	r := s.Require()
	repo := NewOutboxRepository(s.store)

	first, err := repo.Enqueue(s.ctx, orderEvent("order-1", domain.EventOrderPlaced))
	r.NoError(err)
	r.NotEmpty(first.ID, "id is generated when missing")

	time.Sleep(5 * time.Millisecond)
	fixed := orderEvent("order-2", domain.EventOrderConfirmed)
	fixed.ID = "outbox-fixed-id"
	second, err := repo.Enqueue(s.ctx, fixed)
	r.NoError(err)
	r.Equal("outbox-fixed-id", second.ID)

	pending, err := repo.PullPending(s.ctx, 0)
	r.NoError(err)
	r.Len(pending, 2)
	r.Equal(first.ID, pending[0].ID)
	r.JSONEq(`{"order_id":"order-1"}`, string(pending[0].Payload))

	stats, err := repo.Stats(s.ctx)
	r.NoError(err)
	r.Equal(2, stats.PendingCount)
	r.True(stats.OldestPendingAt.Equal(pending[0].CreatedAt))

	r.NoError(repo.MarkSent(s.ctx, first.ID))
	r.NoError(repo.MarkFailed(s.ctx, second.ID))

	pending, err = repo.PullPending(s.ctx, 10)
	r.NoError(err)
	r.Empty(pending)
	stats, err = repo.Stats(s.ctx)
	r.NoError(err)
	r.Zero(stats.PendingCount)
	r.True(stats.OldestPendingAt.IsZero())
}

func (s *storeSuite) TestOutboxSettleUnknownMessage() {
	repo := NewOutboxRepository(s.store)
	s.ErrorIs(repo.MarkSent(s.ctx, "missing-outbox"), domain.ErrOutboxMessageNotFound)
	s.ErrorIs(repo.MarkFailed(s.ctx, "missing-outbox"), domain.ErrOutboxMessageNotFound)
}
