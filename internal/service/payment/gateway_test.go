package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestSimulatedGateway(t *testing.T) {
	gw := NewSimulatedGateway(0)
	gw.DeclineAbove = 10_000

	result, err := gw.Charge(context.Background(), domain.ChargeRequest{OrderID: "o", AmountMinor: 500, Method: "card"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, result.Status)
	require.NotEmpty(t, result.ExternalRef)

	_, err = gw.Charge(context.Background(), domain.ChargeRequest{AmountMinor: 500, Method: "DECLINED"})
	require.ErrorIs(t, err, domain.ErrPaymentDeclined)

	_, err = gw.Charge(context.Background(), domain.ChargeRequest{AmountMinor: 20_000, Method: "card"})
	require.ErrorIs(t, err, domain.ErrPaymentDeclined)

	refund, err := gw.Refund(context.Background(), domain.Payment{ID: "p"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, refund.Status)
}

func TestSimulatedGateway_RespectsDeadline(t *testing.T) {
	gw := NewSimulatedGateway(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, domain.ChargeRequest{AmountMinor: 1, Method: "card"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerGateway(t *testing.T) {
	mock := NewMockGateway()
	settings := resilience.BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.3}
	gw := NewBreakerGateway(mock, settings, nil)

	mock.ChargeErr = domain.ErrPaymentDeclined
	for i := 0; i < 3; i++ {
		_, err := gw.Charge(context.Background(), domain.ChargeRequest{})
		require.ErrorIs(t, err, domain.ErrPaymentDeclined)
	}
	require.Equal(t, "closed", gw.State(), "declines do not trip the breaker")

	mock.ChargeErr = errors.New("connection refused")
	for i := 0; i < 2; i++ {
		_, err := gw.Charge(context.Background(), domain.ChargeRequest{})
		require.Error(t, err)
	}
	require.Equal(t, "open", gw.State())

	calls := mock.ChargeCalls()
	_, err := gw.Charge(context.Background(), domain.ChargeRequest{})
	require.ErrorIs(t, err, domain.ErrPaymentTemporary)
	require.Equal(t, calls, mock.ChargeCalls())
}

func newStripeServer(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTP: srv.Client()})
}

func TestStripeGateway_Charge(t *testing.T) {
	var form url.Values
	var idempotencyKey string
	gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		idempotencyKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":3000,"currency":"usd"}`)
	})

	result, err := gw.Charge(context.Background(), domain.ChargeRequest{
		OrderID: "ord-1", TransactionID: "tx-1", AmountMinor: 3000, Currency: "USD", Method: "pm_card_visa",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", result.ExternalRef)
	require.Equal(t, domain.PaymentStatusSuccess, result.Status)

	require.Equal(t, "3000", form.Get("amount"))
	require.Equal(t, "usd", form.Get("currency"))
	require.Equal(t, "pm_card_visa", form.Get("payment_method"))
	require.Equal(t, "true", form.Get("confirm"))
	require.Equal(t, "ord-1", form.Get("metadata[order_id]"))
	require.Equal(t, "tx-1", idempotencyKey)
}

func TestStripeGateway_ChargeErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "card declined",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`,
			want:   domain.ErrPaymentDeclined,
		},
		{
			name:   "provider outage",
			status: http.StatusInternalServerError,
			body:   `{"error":{"type":"api_error","message":"Something went wrong"}}`,
			want:   domain.ErrPaymentTemporary,
		},
		{
			name:   "requires action",
			status: http.StatusOK,
			body:   `{"id":"pi_9","object":"payment_intent","status":"requires_action"}`,
			want:   domain.ErrPaymentDeclined,
		},
		{
			name:   "still processing",
			status: http.StatusOK,
			body:   `{"id":"pi_9","object":"payment_intent","status":"processing"}`,
			want:   domain.ErrOutcomeUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := gw.Charge(context.Background(), domain.ChargeRequest{TransactionID: fmt.Sprintf("tx-%s", tc.name), AmountMinor: 100, Currency: "usd", Method: "pm"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStripeGateway_Refund(t *testing.T) {
	gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		require.Equal(t, "pi_123", form.Get("payment_intent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	})

	result, err := gw.Refund(context.Background(), domain.Payment{ID: "p1", ExternalRef: "pi_123"})
	require.NoError(t, err)
	require.Equal(t, "re_1", result.ExternalRef)
	require.Equal(t, domain.PaymentStatusRefunded, result.Status)

	_, err = gw.Refund(context.Background(), domain.Payment{ID: "p2"})
	require.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}
