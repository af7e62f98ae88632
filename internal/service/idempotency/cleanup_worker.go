// Package idempotency вычищает просроченные ключи идемпотентности PlaceOrder и ProcessPayment.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/poll"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 500
)

var (
	purgeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_idempotency_purge_runs_total",
		Help: "Idempotency purge passes grouped by result.",
	}, []string{"result"})
	purgedKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_idempotency_purged_keys_total",
		Help: "Expired idempotency keys removed from storage.",
	})
)

// Option настраивает CleanupWorker.
type Option func(*CleanupWorker)

func WithLogger(logger *log.Entry) Option {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом к хранилищу.
func WithBatchSize(size int) Option {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// CleanupWorker удаляет ключи, срок хранения ответа по которым истёк.
// После удаления тот же ключ снова можно занять новым запросом.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...Option) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-cleanup"),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run чистит хранилище сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repository is missing")
		return
	}
	poll.Loop(ctx, w.interval, func(ctx context.Context) {
		removed, err := w.DeleteExpired(ctx, w.now())
		switch {
		case errors.Is(err, context.Canceled):
		case err != nil:
			purgeRuns.WithLabelValues("error").Inc()
			w.logger.WithError(err).WithField("removed", removed).Warn("idempotency purge interrupted")
		default:
			purgeRuns.WithLabelValues("ok").Inc()
			if removed > 0 {
				w.logger.WithField("removed", removed).Info("expired idempotency keys purged")
			}
		}
	})
}

// DeleteExpired удаляет пачками все ключи с ttl не позже before и возвращает их число.
// Нулевой before означает "сейчас".
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}
	total := 0
	for ctx.Err() == nil {
		n, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		total += n
		purgedKeys.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			return total, nil
		}
	}
	return total, ctx.Err()
}
