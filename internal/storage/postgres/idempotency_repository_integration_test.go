package postgres

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func (s *storeSuite) TestIdempotencyClaimAndSettle() {
	r := s.Require()
	repo := NewIdempotencyRepository(s.store)
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	claim, err := repo.CreateProcessing(s.ctx, "pay:order-1", "hash-a", ttl)
	r.NoError(err)
	r.Equal(domain.IdempotencyStatusProcessing, claim.Status)

	_, err = repo.CreateProcessing(s.ctx, "pay:order-1", "hash-a", ttl)
	r.ErrorIs(err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(s.ctx, "pay:order-1", "hash-b", ttl)
	r.ErrorIs(err, domain.ErrIdempotencyHashMismatch)

	r.NoError(repo.MarkDone(s.ctx, "pay:order-1", []byte(`{"payment_id":"pay-1"}`), 0))
	got, err := repo.Get(s.ctx, "pay:order-1")
	r.NoError(err)
	r.Equal(domain.IdempotencyStatusDone, got.Status)
	r.Equal("hash-a", got.RequestHash)
	r.JSONEq(`{"payment_id":"pay-1"}`, string(got.ResponseBody))
	r.True(got.TTLAt.Equal(ttl), "ttl %s, want %s", got.TTLAt, ttl)

	r.ErrorIs(repo.MarkFailed(s.ctx, "never-claimed", nil, 13), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(s.ctx, "never-claimed")
	r.ErrorIs(err, domain.ErrIdempotencyKeyNotFound)
}

func (s *storeSuite) TestIdempotencyExpiredClaimIsReplaced() {
	r := s.Require()
	repo := NewIdempotencyRepository(s.store)
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(s.ctx, "place:user-1", "old-hash", now.Add(-time.Minute))
	r.NoError(err)
	r.NoError(repo.MarkFailed(s.ctx, "place:user-1", []byte(`{"error":"x"}`), 13))

	fresh, err := repo.CreateProcessing(s.ctx, "place:user-1", "new-hash", now.Add(time.Hour))
	r.NoError(err)
	r.Equal("new-hash", fresh.RequestHash)

	got, err := repo.Get(s.ctx, "place:user-1")
	r.NoError(err)
	r.Equal(domain.IdempotencyStatusProcessing, got.Status)
	r.Empty(got.ResponseBody)
	r.Zero(got.StatusCode)
}

func (s *storeSuite) TestIdempotencyDeleteExpiredInBatches() {
	r := s.Require()
	repo := NewIdempotencyRepository(s.store)
	now := time.Now().UTC()

	for i, ttl := range []time.Duration{-5 * time.Minute, -4 * time.Minute, -3 * time.Minute, time.Hour} {
		_, err := repo.CreateProcessing(s.ctx, "key-"+string(rune('a'+i)), "h", now.Add(ttl))
		r.NoError(err)
	}

	removed, err := repo.DeleteExpired(s.ctx, now, 2)
	r.NoError(err)
	r.Equal(2, removed)
	removed, err = repo.DeleteExpired(s.ctx, now, 0)
	r.NoError(err)
	r.Equal(1, removed)

	_, err = repo.Get(s.ctx, "key-d")
	r.NoError(err, "live key survives")
}
