package postgres

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func sampleOrder(id, userID string, orderedAt time.Time) domain.Order {
	return domain.Order{
		ID:         id,
		UserID:     userID,
		AddressID:  "addr-1",
		Status:     domain.OrderStatusPending,
		TotalMinor: 450,
		Lines: []domain.OrderLine{
			{ID: id + "-line-1", ItemID: "item-1", LotID: "lot-a", Qty: 2, UnitPriceMinor: 150, SubtotalMinor: 300},
			{ID: id + "-line-2", ItemID: "item-1", LotID: "lot-b", Qty: 1, UnitPriceMinor: 150, SubtotalMinor: 150},
		},
		OrderedAt: orderedAt,
		UpdatedAt: orderedAt,
	}
}

func (s *storeSuite) TestOrderRoundTripAndListing() {
	r := s.Require()
	repo := NewOrderRepository(s.store)

	now := time.Now().UTC().Round(time.Microsecond)
	older := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	newer := sampleOrder("order-2", "user-1", now.Add(-time.Minute))
	r.NoError(repo.Create(s.ctx, older))
	r.NoError(repo.Create(s.ctx, newer))

	got, err := repo.Get(s.ctx, older.ID)
	r.NoError(err)
	r.Equal(domain.OrderStatusPending, got.Status)
	r.Equal(older.Lines, got.Lines)
	r.Empty(got.ValidateInvariants())
	r.Nil(got.FinalizedAt)
	r.Nil(got.DeliveryDate)

	latest, err := repo.ListByUser(s.ctx, "user-1", 1)
	r.NoError(err)
	r.Len(latest, 1)
	r.Equal(newer.ID, latest[0].ID)

	all, err := repo.ListByUser(s.ctx, "user-1", 0)
	r.NoError(err)
	r.Len(all, 2)
	r.Len(all[1].Lines, 2)
}

func (s *storeSuite) TestOrderSaveBumpsVersion() {
	r := s.Require()
	repo := NewOrderRepository(s.store)

	now := time.Now().UTC().Round(time.Microsecond)
	r.NoError(repo.Create(s.ctx, sampleOrder("order-3", "user-3", now)))
	order, err := repo.Get(s.ctx, "order-3")
	r.NoError(err)

	finalizedAt := now.Add(time.Minute)
	order.Status = domain.OrderStatusConfirmed
	order.FinalizedAt = &finalizedAt
	order.UpdatedAt = finalizedAt
	r.NoError(repo.Save(s.ctx, order))

	saved, err := repo.Get(s.ctx, "order-3")
	r.NoError(err)
	r.True(saved.Finalized())
	r.True(saved.FinalizedAt.Equal(finalizedAt))
	r.Equal(order.Version+1, saved.Version)

	// Повторное сохранение со старой версией проигрывает.
	r.ErrorIs(repo.Save(s.ctx, order), domain.ErrOrderVersionConflict)
}

func (s *storeSuite) TestOrderErrors() {
	r := s.Require()
	repo := NewOrderRepository(s.store)
	order := sampleOrder("order-errors", "user-2", time.Now().UTC().Round(time.Microsecond))

	_, err := repo.Get(s.ctx, "missing-order")
	r.ErrorIs(err, domain.ErrOrderNotFound)
	r.ErrorIs(repo.Save(s.ctx, order), domain.ErrOrderNotFound)

	r.NoError(repo.Create(s.ctx, order))
	r.ErrorIs(repo.Create(s.ctx, order), domain.ErrOrderVersionConflict)
}
