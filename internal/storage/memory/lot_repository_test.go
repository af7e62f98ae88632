package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func seedLot(t *testing.T, repo domain.LotRepository, id, itemID string, expires time.Time, qty int32) {
	t.Helper()
	err := repo.Create(context.Background(), domain.Lot{
		ID: id, ItemID: itemID, BatchNo: "B-" + id, ExpiresAt: expires, QtyAvailable: qty, QtyTotal: qty,
	})
	if err != nil {
		t.Fatalf("seed lot %s: %v", id, err)
	}
}

func TestLotRepository_ListAvailableOrdered(t *testing.T) {
	repo := memory.NewLotRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, repo, "L3", "item-a", base.AddDate(0, 2, 0), 5)
	seedLot(t, repo, "L1", "item-a", base, 10)
	seedLot(t, repo, "L2", "item-a", base, 0)
	seedLot(t, repo, "L9", "item-b", base, 10)

	lots, err := repo.ListAvailable(context.Background(), "item-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(lots) != 2 || lots[0].ID != "L1" || lots[1].ID != "L3" {
		t.Fatalf("unexpected lots %+v", lots)
	}
}

func TestLotRepository_DuplicateBatch(t *testing.T) {
	repo := memory.NewLotRepository()
	ctx := context.Background()
	lot := domain.Lot{ID: "L1", ItemID: "item-a", BatchNo: "B1", QtyAvailable: 1, QtyTotal: 1}
	if err := repo.Create(ctx, lot); err != nil {
		t.Fatalf("create: %v", err)
	}
	lot.ID = "L2"
	if err := repo.Create(ctx, lot); !errors.Is(err, domain.ErrLotExists) {
		t.Fatalf("expected ErrLotExists, got %v", err)
	}
}

func TestLotRepository_DecrementConditional(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewLotRepository()
	seedLot(t, repo, "L1", "item-a", time.Now(), 10)

	if err := repo.Decrement(ctx, domain.DecrementRequest{LotID: "L1", Qty: 4}); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := repo.Decrement(ctx, domain.DecrementRequest{LotID: "L1", Qty: 7}); !errors.Is(err, domain.ErrInsufficientLotQuantity) {
		t.Fatalf("expected ErrInsufficientLotQuantity, got %v", err)
	}
	if err := repo.Decrement(ctx, domain.DecrementRequest{LotID: "missing", Qty: 1}); !errors.Is(err, domain.ErrLotNotFound) {
		t.Fatalf("expected ErrLotNotFound, got %v", err)
	}

	lot, _ := repo.Get(ctx, "L1")
	if lot.QtyAvailable != 6 {
		t.Fatalf("expected 6 left, got %d", lot.QtyAvailable)
	}
}

func TestLotRepository_DecrementReferenceAppliedOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewLotRepository()
	seedLot(t, repo, "L1", "item-a", time.Now(), 10)

	req := domain.DecrementRequest{LotID: "L1", Qty: 3, Reference: "order-1/line-1"}
	for i := 0; i < 3; i++ {
		if err := repo.Decrement(ctx, req); err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
	}
	lot, _ := repo.Get(ctx, "L1")
	if lot.QtyAvailable != 7 {
		t.Fatalf("expected single application, qty=%d", lot.QtyAvailable)
	}
}

func TestLotRepository_ConcurrentDecrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewLotRepository()
	seedLot(t, repo, "L1", "item-a", time.Now(), 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Decrement(ctx, domain.DecrementRequest{LotID: "L1", Qty: 1, Reference: fmt.Sprintf("ref-%d", i)})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	lot, _ := repo.Get(ctx, "L1")
	if ok != 10 || lot.QtyAvailable != 0 {
		t.Fatalf("expected 10 successful decrements and zero stock, got ok=%d qty=%d", ok, lot.QtyAvailable)
	}
}
