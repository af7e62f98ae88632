package postgres

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func sampleLot(id, itemID, batch string, expires time.Time, qty int32) domain.Lot {
	return domain.Lot{
		ID:           id,
		ItemID:       itemID,
		BatchNo:      batch,
		ExpiresAt:    expires,
		QtyAvailable: qty,
		QtyTotal:     qty,
	}
}

func (s *storeSuite) TestLotsListedByExpiryThenBatch() {
	r := s.Require()
	repo := NewLotRepository(s.store)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, lot := range []domain.Lot{
		sampleLot("lot-late", "item-1", "B3", base.Add(72*time.Hour), 5),
		sampleLot("lot-b", "item-1", "B2", base, 5),
		sampleLot("lot-a", "item-1", "B1", base, 5),
		sampleLot("lot-empty", "item-1", "B4", base.Add(-time.Hour), 0),
		sampleLot("lot-other", "item-2", "B1", base, 5),
	} {
		r.NoError(repo.Create(s.ctx, lot), lot.ID)
	}
	r.ErrorIs(repo.Create(s.ctx, sampleLot("lot-dup", "item-1", "B1", base, 1)), domain.ErrLotExists)

	lots, err := repo.ListAvailable(s.ctx, "item-1")
	r.NoError(err)
	var ids []string
	for _, lot := range lots {
		ids = append(ids, lot.ID)
	}
	r.Equal([]string{"lot-a", "lot-b", "lot-late"}, ids)
}

func (s *storeSuite) TestLotDecrementIsIdempotentPerReference() {
	r := s.Require()
	repo := NewLotRepository(s.store)
	r.NoError(repo.Create(s.ctx, sampleLot("lot-1", "item-1", "B1", time.Now().UTC().Add(time.Hour), 5)))

	first := domain.DecrementRequest{LotID: "lot-1", Qty: 3, Reference: "order-1:line-1"}
	r.NoError(repo.Decrement(s.ctx, first))
	r.NoError(repo.Decrement(s.ctx, first))

	lot, err := repo.Get(s.ctx, "lot-1")
	r.NoError(err)
	r.EqualValues(2, lot.QtyAvailable)

	second := domain.DecrementRequest{LotID: "lot-1", Qty: 3, Reference: "order-2:line-1"}
	r.ErrorIs(repo.Decrement(s.ctx, second), domain.ErrInsufficientLotQuantity)
	// Отклонённое списание не занимает reference.
	second.Qty = 2
	r.NoError(repo.Decrement(s.ctx, second))

	r.ErrorIs(repo.Decrement(s.ctx, domain.DecrementRequest{LotID: "missing", Qty: 1, Reference: "order-3:line-1"}),
		domain.ErrLotNotFound)
}

func (s *storeSuite) TestLotConcurrentDecrementsNeverOversell() {
	r := s.Require()
	repo := NewLotRepository(s.store)
	r.NoError(repo.Create(s.ctx, sampleLot("lot-hot", "item-hot", "B1", time.Now().UTC().Add(time.Hour), 10)))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Decrement(s.ctx, domain.DecrementRequest{LotID: "lot-hot", Qty: 1, Reference: fmt.Sprintf("race-%d", i)})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientLotQuantity):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	lot, err := repo.Get(s.ctx, "lot-hot")
	r.NoError(err)
	r.EqualValues(10, succeeded.Load())
	r.EqualValues(15, rejected.Load())
	r.Zero(lot.QtyAvailable)
}
