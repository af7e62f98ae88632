package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestCleanupWorker_DeleteExpiredInBatches(t *testing.T) {
	repo := &batchRepo{results: []int{2, 2, 1}}

	removed, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(context.Background(), time.Now())

	require.NoError(t, err)
	require.Equal(t, 5, removed)
	require.Equal(t, 3, repo.callCount())
}

func TestCleanupWorker_DeleteExpiredStopsOnError(t *testing.T) {
	repo := &batchRepo{results: []int{10}, errAt: 2, err: errors.New("connection reset")}

	removed, err := NewCleanupWorker(repo, WithBatchSize(10)).DeleteExpired(context.Background(), time.Now())

	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 10, removed)
}

func TestCleanupWorker_FreesExpiredPlaceOrderKeys(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(ctx, "place-old", "hash-a", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "place-live", "hash-b", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := NewCleanupWorker(repo, WithBatchSize(1)).DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "place-old")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	live, err := repo.Get(ctx, "place-live")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, live.Status)
}

func TestCleanupWorker_RunStopsOnCancel(t *testing.T) {
	repo := &batchRepo{}
	w := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop on context cancel")
	}
}

// batchRepo отдаёт results по одному на вызов DeleteExpired, на вызове errAt возвращает err.
type batchRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	results []int
	errAt   int
	err     error
	calls   int
}

func (r *batchRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.errAt == r.calls {
		return 0, r.err
	}
	if len(r.results) == 0 {
		return 0, nil
	}
	n := r.results[0]
	r.results = r.results[1:]
	return n, nil
}

func (r *batchRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
