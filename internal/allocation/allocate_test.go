package allocation

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAllocate_FIFOAcrossLots(t *testing.T) {
	lots := []domain.Lot{
		{ID: "L2", ExpiresAt: day("2025-06-01"), QtyAvailable: 25},
		{ID: "L1", ExpiresAt: day("2025-01-01"), QtyAvailable: 10},
	}

	plan, err := Allocate(30, lots)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	want := []domain.Allocation{{LotID: "L1", Qty: 10}, {LotID: "L2", Qty: 20}}
	if !reflect.DeepEqual(plan.Allocations, want) {
		t.Fatalf("plan = %+v, want %+v", plan.Allocations, want)
	}
	if lots[0].ID != "L2" || lots[0].QtyAvailable != 25 || lots[1].QtyAvailable != 10 {
		t.Fatalf("input lots mutated: %+v", lots)
	}
}

func TestAllocate_TieBrokenByLotID(t *testing.T) {
	exp := day("2025-03-01")
	lots := []domain.Lot{
		{ID: "lot-b", ExpiresAt: exp, QtyAvailable: 5},
		{ID: "lot-a", ExpiresAt: exp, QtyAvailable: 5},
	}

	plan, err := Allocate(7, lots)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if plan.Allocations[0].LotID != "lot-a" || plan.Allocations[0].Qty != 5 || plan.Allocations[1].Qty != 2 {
		t.Fatalf("unexpected tie-break: %+v", plan.Allocations)
	}
}

func TestAllocate_ExactMatchOnLastLot(t *testing.T) {
	lots := []domain.Lot{
		{ID: "L1", ExpiresAt: day("2025-01-01"), QtyAvailable: 3},
		{ID: "L2", ExpiresAt: day("2025-02-01"), QtyAvailable: 4},
	}
	plan, err := Allocate(7, lots)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(plan.Allocations) != 2 || plan.AllocatedQty() != 7 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestAllocate_SkipsEmptyLots(t *testing.T) {
	lots := []domain.Lot{
		{ID: "L0", ExpiresAt: day("2024-12-01"), QtyAvailable: 0},
		{ID: "L1", ExpiresAt: day("2025-01-01"), QtyAvailable: 2},
	}
	plan, err := Allocate(2, lots)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(plan.Allocations) != 1 || plan.Allocations[0].LotID != "L1" {
		t.Fatalf("empty lot should be skipped: %+v", plan.Allocations)
	}
}

func TestAllocate_Shortage(t *testing.T) {
	lots := []domain.Lot{
		{ID: "L1", ExpiresAt: day("2025-01-01"), QtyAvailable: 15},
		{ID: "L2", ExpiresAt: day("2025-02-01"), QtyAvailable: 25},
	}

	plan, err := Allocate(50, lots)
	var shortage *domain.ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected ShortageError, got %v", err)
	}
	if shortage.Requested != 50 || shortage.Allocated != 40 {
		t.Fatalf("unexpected shortage %+v", shortage)
	}
	if len(plan.Allocations) != 0 {
		t.Fatalf("no partial plan expected, got %+v", plan)
	}
}

func TestAllocate_NoLots(t *testing.T) {
	_, err := Allocate(1, nil)
	var shortage *domain.ShortageError
	if !errors.As(err, &shortage) || shortage.Allocated != 0 {
		t.Fatalf("expected shortage with allocated=0, got %v", err)
	}
}

func TestAllocate_NonPositiveRequest(t *testing.T) {
	for _, qty := range []int32{0, -3} {
		if _, err := Allocate(qty, []domain.Lot{{ID: "L1", QtyAvailable: 10}}); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestForLine_StampsItemAndPrice(t *testing.T) {
	line := domain.CartLine{ItemID: "item-a", Qty: 4, UnitPriceMinor: 199}
	plan, err := ForLine(line, []domain.Lot{{ID: "L1", ItemID: "item-a", ExpiresAt: day("2025-01-01"), QtyAvailable: 9}})
	if err != nil {
		t.Fatalf("for line: %v", err)
	}
	if plan.ItemID != "item-a" || plan.UnitPriceMinor != 199 || plan.Allocations[0].UnitPriceMinor != 199 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	_, err = ForLine(domain.CartLine{ItemID: "item-z", Qty: 1}, nil)
	var shortage *domain.ShortageError
	if !errors.As(err, &shortage) || shortage.ItemID != "item-z" {
		t.Fatalf("expected shortage for item-z, got %v", err)
	}
}

// Свойства: при достаточном остатке план покрывает запрос ровно и идёт по неубывающему сроку,
// при недостаточном возвращается нехватка без плана.
func TestAllocate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := day("2025-01-01")

	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(6)
		lots := make([]domain.Lot, n)
		expiry := make(map[string]time.Time, n)
		var capacity int32
		for i := range lots {
			id := string(rune('A' + i))
			lots[i] = domain.Lot{
				ID:           id,
				ExpiresAt:    base.AddDate(0, 0, rng.Intn(5)),
				QtyAvailable: int32(rng.Intn(20)),
			}
			expiry[id] = lots[i].ExpiresAt
			capacity += lots[i].QtyAvailable
		}
		requested := int32(rng.Intn(60) + 1)

		plan, err := Allocate(requested, lots)
		if requested > capacity {
			var shortage *domain.ShortageError
			if !errors.As(err, &shortage) || shortage.Allocated != capacity {
				t.Fatalf("iter %d: expected shortage with allocated=%d, got %v", iter, capacity, err)
			}
			if len(plan.Allocations) != 0 {
				t.Fatalf("iter %d: partial plan returned on shortage", iter)
			}
			continue
		}
		if err != nil {
			t.Fatalf("iter %d: unexpected error %v", iter, err)
		}
		if plan.AllocatedQty() != requested {
			t.Fatalf("iter %d: allocated %d, requested %d", iter, plan.AllocatedQty(), requested)
		}
		for i := 1; i < len(plan.Allocations); i++ {
			if expiry[plan.Allocations[i].LotID].Before(expiry[plan.Allocations[i-1].LotID]) {
				t.Fatalf("iter %d: allocations out of expiry order: %+v", iter, plan.Allocations)
			}
		}
	}
}
