package postgres

import (
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func samplePayment(id, orderID string, now time.Time) domain.Payment {
	return domain.Payment{
		ID:            id,
		OrderID:       orderID,
		UserID:        "user-1",
		AmountMinor:   4500,
		Currency:      "USD",
		Status:        domain.PaymentStatusProcessing,
		Method:        "card",
		TransactionID: "txn-" + id,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *storeSuite) TestPaymentCreateIfAbsentAndSave() {
	r := s.Require()
	repo := NewPaymentRepository(s.store)

	now := time.Now().UTC().Round(time.Microsecond)
	stored, created, err := repo.CreateIfAbsent(s.ctx, samplePayment("pay-1", "order-1", now))
	r.NoError(err)
	r.True(created)
	r.EqualValues(1, stored.Version)

	existing, created, err := repo.CreateIfAbsent(s.ctx, samplePayment("pay-2", "order-1", now))
	r.NoError(err)
	r.False(created, "one payment per order")
	r.Equal("pay-1", existing.ID)

	paidAt := now.Add(time.Second)
	stored.Status = domain.PaymentStatusSuccess
	stored.ExternalRef = "pi_123"
	stored.PaidAt = &paidAt
	stored.UpdatedAt = paidAt
	r.NoError(repo.Save(s.ctx, stored))
	r.ErrorIs(repo.Save(s.ctx, stored), domain.ErrPaymentVersionConflict)

	got, err := repo.GetByOrderID(s.ctx, "order-1")
	r.NoError(err)
	r.Equal(domain.PaymentStatusSuccess, got.Status)
	r.Equal("pi_123", got.ExternalRef)
	r.EqualValues(2, got.Version)
	r.NotNil(got.PaidAt)
	r.True(got.PaidAt.Equal(paidAt))

	listed, err := repo.ListByUser(s.ctx, "user-1", 10)
	r.NoError(err)
	r.Len(listed, 1)

	_, err = repo.Get(s.ctx, "missing")
	r.ErrorIs(err, domain.ErrPaymentNotFound)
	r.ErrorIs(repo.Save(s.ctx, samplePayment("ghost", "order-ghost", now)), domain.ErrPaymentNotFound)
}

func (s *storeSuite) TestPaymentTransactionsAppendOnly() {
	r := s.Require()
	payments := NewPaymentRepository(s.store)
	txs := NewTransactionRepository(s.store)

	now := time.Now().UTC().Round(time.Microsecond)
	payment, _, err := payments.CreateIfAbsent(s.ctx, samplePayment("pay-tx", "order-tx", now))
	r.NoError(err)

	for i, kind := range []domain.TransactionType{domain.TransactionTypePayment, domain.TransactionTypeRefund} {
		r.NoError(txs.Append(s.ctx, domain.Transaction{
			PaymentID:   payment.ID,
			Type:        kind,
			AmountMinor: payment.AmountMinor,
			Status:      domain.TransactionStatusSuccess,
			Description: fmt.Sprintf("step %d", i),
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}))
	}

	list, err := txs.ListByPayment(s.ctx, payment.ID)
	r.NoError(err)
	r.Len(list, 2)
	r.Equal(domain.TransactionTypePayment, list[0].Type)
	r.Equal(domain.TransactionTypeRefund, list[1].Type)
}

func (s *storeSuite) TestPaymentConcurrentCreateHasSingleWinner() {
	repo := NewPaymentRepository(s.store)
	now := time.Now().UTC()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		ids     = make(map[string]bool)
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, created, err := repo.CreateIfAbsent(s.ctx, samplePayment(fmt.Sprintf("pay-race-%d", i), "order-race", now))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.T().Errorf("create if absent: %v", err)
				return
			}
			if created {
				winners++
			}
			ids[stored.ID] = true
		}()
	}
	wg.Wait()

	s.Equal(1, winners)
	s.Len(ids, 1)
}
