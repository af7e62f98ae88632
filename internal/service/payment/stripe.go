package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"

	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// StripeConfig: настройки шлюза Stripe.
type StripeConfig struct {
	SecretKey string
	// BaseURL переопределяет адрес API (stripe-mock, тесты).
	BaseURL string
	HTTP    *http.Client
}

// StripeGateway проводит списания через PaymentIntents с немедленным подтверждением.
// TransactionID платежа передаётся как idempotency key: повтор того же
// захвата не создаёт второе списание.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway создаёт шлюз с выключенными внутренними повторами stripe-go:
// повторами управляет координатор.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		HTTPClient:        cfg.HTTP,
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &StripeGateway{
		api: client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
	}
}

func (g *StripeGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Method),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("transaction_id", req.TransactionID)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.ChargeResult{}, stripeError("charge", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.ChargeResult{ExternalRef: intent.ID, Status: domain.PaymentStatusSuccess}, nil
	case stripe.PaymentIntentStatusProcessing:
		return domain.ChargeResult{ExternalRef: intent.ID}, fmt.Errorf("charge %s: %w: intent is processing", intent.ID, domain.ErrOutcomeUnknown)
	default:
		return domain.ChargeResult{ExternalRef: intent.ID}, fmt.Errorf("%w: intent %s status %s", domain.ErrPaymentDeclined, intent.ID, intent.Status)
	}
}

func (g *StripeGateway) Refund(ctx context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	if payment.ExternalRef == "" {
		return domain.ChargeResult{}, fmt.Errorf("refund payment %s: %w: no external reference", payment.ID, domain.ErrPaymentNotRefundable)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.ExternalRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + payment.ID)

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return domain.ChargeResult{}, stripeError("refund", err)
	}
	switch refund.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		return domain.ChargeResult{ExternalRef: refund.ID, Status: domain.PaymentStatusRefunded}, nil
	default:
		return domain.ChargeResult{ExternalRef: refund.ID}, fmt.Errorf("refund %s: %w: status %s", refund.ID, domain.ErrPaymentTemporary, refund.Status)
	}
}

// stripeError переводит ошибки stripe-go в доменные.
func stripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return resilience.TransportError("stripe "+op, err, domain.ErrPaymentTemporary)
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, stripeErr.Msg)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError, stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("stripe %s: %w: %s", op, domain.ErrPaymentTemporary, stripeErr.Msg)
	default:
		return fmt.Errorf("stripe %s: %w: %s", op, domain.ErrPaymentDeclined, stripeErr.Msg)
	}
}

var _ domain.PaymentGateway = (*StripeGateway)(nil)
