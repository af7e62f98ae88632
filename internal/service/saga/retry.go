package saga

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig: повторы записи заказа при конфликте версий.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Delay возвращает паузу перед попыткой attempt+1 (attempt считается с 1).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if c.MaxDelay > 0 && time.Duration(delay) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return time.Duration(delay)
}

// errNoChange: мутация не изменила заказ, сохранять нечего.
var errNoChange = errors.New("order unchanged")

// mutateOrder читает заказ, применяет mutate и сохраняет его с проверкой версии.
// При конфликте версий заказ перечитывается и mutate применяется заново.
// Если mutate вернул errNoChange, возвращается текущий заказ и changed == false.
func (o *orchestrator) mutateOrder(ctx context.Context, orderID string, mutate func(order *domain.Order) error) (order domain.Order, changed bool, err error) {
	attempts := o.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		order, err = o.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, false, err
		}

		if err := mutate(&order); err != nil {
			if errors.Is(err, errNoChange) {
				return order, false, nil
			}
			return domain.Order{}, false, err
		}

		err = o.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			return order, true, nil
		}
		if !domain.IsVersionConflict(err) || attempt >= attempts {
			return domain.Order{}, false, err
		}

		delay := o.retry.Delay(attempt)
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return domain.Order{}, false, ctx.Err()
		case <-time.After(delay):
		}
	}
}
