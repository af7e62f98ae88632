// Package resilience оборачивает вызовы внешних сервисов в circuit breaker с метриками.
package resilience

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// BreakerSettings: параметры circuit breaker.
type BreakerSettings struct {
	// MaxRequests: сколько пробных запросов пропускается в half-open.
	MaxRequests uint32
	// Interval: окно подсчёта ошибок в closed.
	Interval time.Duration
	// Timeout: сколько breaker остаётся open перед переходом в half-open.
	Timeout time.Duration
	// MinRequests и FailureRatio задают условие размыкания.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings возвращает настройки по умолчанию.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// Breaker: gobreaker с метриками состояния и отказов.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	client string
	logger *log.Entry
	benign func(error) bool
}

// BreakerOption настраивает Breaker.
type BreakerOption func(*Breaker)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) BreakerOption {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBenignErrors помечает ошибки, которые не считаются отказом сервиса
// (например, бизнес-отказ «недостаточно остатка»).
func WithBenignErrors(fn func(error) bool) BreakerOption {
	return func(b *Breaker) {
		b.benign = fn
	}
}

// NewBreaker создаёт breaker для клиента client и цепи name.
func NewBreaker(client, name string, settings BreakerSettings, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:   name,
		client: client,
		logger: log.New().WithField("component", "circuit-breaker"),
		benign: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || b.benign(err)
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(client, cbName).Set(stateValue(to))
			b.logger.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(client, name).Set(0)

	return b
}

// Do выполняет fn через breaker. Ошибка открытого breaker оборачивает unavailable.
func (b *Breaker) Do(fn func() error, unavailable error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	if !b.benign(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(b.client, b.name).Inc()
	}
	return formatError(b.name, err, unavailable)
}

// State возвращает текущее состояние: closed, open или half-open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func formatError(name string, err, unavailable error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return fmt.Errorf("%w: circuit breaker %s is open", unavailable, name)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit breaker %s: too many requests in half-open state", unavailable, name)
	default:
		return err
	}
}
