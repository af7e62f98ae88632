package postgres

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func (s *storeSuite) TestTimelineOrderedByOccurrence() {
	r := s.Require()
	repo := NewTimelineRepository(s.store)
	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	r.NoError(repo.Append(s.ctx, domain.TimelineEvent{
		OrderID: "order-1",
		Type:    domain.EventOrderConfirmed,
		Status:  domain.OrderStatusConfirmed,
		Reason:  "payment finalized",
	}))
	r.NoError(repo.Append(s.ctx, domain.TimelineEvent{
		OrderID:  "order-1",
		Type:     domain.EventOrderPlaced,
		Status:   domain.OrderStatusPending,
		Occurred: placedAt,
	}))
	r.NoError(repo.Append(s.ctx, domain.TimelineEvent{OrderID: "order-2", Type: domain.EventOrderPlaced}))

	events, err := repo.List(s.ctx, "order-1")
	r.NoError(err)
	r.Len(events, 2)
	r.Equal(domain.EventOrderPlaced, events[0].Type)
	r.Equal(domain.OrderStatusPending, events[0].Status)
	r.True(events[0].Occurred.Equal(placedAt))
	r.Equal(domain.EventOrderConfirmed, events[1].Type)
	r.Equal("payment finalized", events[1].Reason)
	r.False(events[1].Occurred.IsZero(), "zero occurrence is stamped on append")
}

func (s *storeSuite) TestTimelineRejectsAndUnknownOrder() {
	repo := NewTimelineRepository(s.store)
	s.Error(repo.Append(s.ctx, domain.TimelineEvent{Type: domain.EventOrderPlaced}))

	events, err := repo.List(s.ctx, "missing-order")
	s.NoError(err)
	s.Empty(events)
}
