package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// SimulatedGateway: платёжный шлюз для локального запуска без провайдера.
// Отклоняет способы оплаты из DeclineMethods и суммы выше DeclineAbove.
type SimulatedGateway struct {
	Latency        time.Duration
	DeclineMethods []string
	// DeclineAbove: порог суммы в минорных единицах; 0 отключает проверку.
	DeclineAbove int64
}

// NewSimulatedGateway создаёт шлюз, отклоняющий метод "declined".
func NewSimulatedGateway(latency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{Latency: latency, DeclineMethods: []string{"declined"}}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if err := g.wait(ctx); err != nil {
		return domain.ChargeResult{}, err
	}
	for _, m := range g.DeclineMethods {
		if strings.EqualFold(m, req.Method) {
			return domain.ChargeResult{}, fmt.Errorf("%w: method %s rejected", domain.ErrPaymentDeclined, req.Method)
		}
	}
	if g.DeclineAbove > 0 && req.AmountMinor > g.DeclineAbove {
		return domain.ChargeResult{}, fmt.Errorf("%w: insufficient funds", domain.ErrPaymentDeclined)
	}
	return domain.ChargeResult{
		ExternalRef: "sim_" + uuid.NewString()[:8],
		Status:      domain.PaymentStatusSuccess,
	}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	if err := g.wait(ctx); err != nil {
		return domain.ChargeResult{}, err
	}
	return domain.ChargeResult{
		ExternalRef: "sim_rf_" + uuid.NewString()[:8],
		Status:      domain.PaymentStatusRefunded,
	}, nil
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BreakerGateway защищает платёжный шлюз circuit breaker'ом.
// Отказ провайдера не считается сбоем шлюза.
type BreakerGateway struct {
	next    domain.PaymentGateway
	breaker *resilience.Breaker
}

// NewBreakerGateway оборачивает шлюз.
func NewBreakerGateway(next domain.PaymentGateway, settings resilience.BreakerSettings, logger *log.Entry) *BreakerGateway {
	return &BreakerGateway{
		next: next,
		breaker: resilience.NewBreaker("payment-gateway", "gateway", settings,
			resilience.WithLogger(logger),
			resilience.WithBenignErrors(func(err error) bool { return errors.Is(err, domain.ErrPaymentDeclined) }),
		),
	}
}

func (g *BreakerGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	var result domain.ChargeResult
	err := g.breaker.Do(func() error {
		var err error
		result, err = g.next.Charge(ctx, req)
		return err
	}, domain.ErrPaymentTemporary)
	return result, err
}

func (g *BreakerGateway) Refund(ctx context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	var result domain.ChargeResult
	err := g.breaker.Do(func() error {
		var err error
		result, err = g.next.Refund(ctx, payment)
		return err
	}, domain.ErrPaymentTemporary)
	return result, err
}

// State возвращает состояние circuit breaker.
func (g *BreakerGateway) State() string {
	return g.breaker.State()
}

var (
	_ domain.PaymentGateway = (*SimulatedGateway)(nil)
	_ domain.PaymentGateway = (*BreakerGateway)(nil)
)
