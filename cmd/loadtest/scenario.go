package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
)

const (
	idempotencyHeader = "idempotency-key"
	userRoleHeader    = "x-user-role"
	adminRole         = "admin"
	orderCancelled    = "cancelled"
	paymentSucceeded  = "success"
	seedLotShelfLife  = 30 * 24 * time.Hour
)

// stockSeeder наполняет корзины и склад перед оформлением заказов.
type stockSeeder interface {
	PutCartLine(ctx context.Context, userID, itemID string, qty int32, unitPriceMinor int64) error
	CreateLot(ctx context.Context, itemID, batchNo string, qty int32, expiresAt time.Time) error
}

// targets: клиенты, которыми сценарий проходит весь checkout.
type targets struct {
	orders   checkoutv1.OrderServiceClient
	payments checkoutv1.PaymentServiceClient
	seeder   stockSeeder
}

// httpSeeder ходит в HTTP API корзины и склада.
type httpSeeder struct {
	cart      *resty.Client
	inventory *resty.Client
}

func newHTTPSeeder(cartURL, inventoryURL string, timeout time.Duration) *httpSeeder {
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json")
	}
	return &httpSeeder{cart: newClient(cartURL), inventory: newClient(inventoryURL)}
}

func (s *httpSeeder) PutCartLine(ctx context.Context, userID, itemID string, qty int32, unitPriceMinor int64) error {
	resp, err := s.cart.R().
		SetContext(ctx).
		SetBody(checkoutv1.PutCartLineRequest{Qty: qty, UnitPriceMinor: unitPriceMinor}).
		SetError(&checkoutv1.ErrorResponse{}).
		Put("/api/v1/carts/" + url.PathEscape(userID) + "/lines/" + url.PathEscape(itemID))
	return httpError("put cart line", resp, err)
}

func (s *httpSeeder) CreateLot(ctx context.Context, itemID, batchNo string, qty int32, expiresAt time.Time) error {
	resp, err := s.inventory.R().
		SetContext(ctx).
		SetBody(checkoutv1.CreateLotRequest{
			ItemID:    itemID,
			BatchNo:   batchNo,
			ExpiresAt: expiresAt,
			Quantity:  qty,
		}).
		SetError(&checkoutv1.ErrorResponse{}).
		Post("/api/v1/lots")
	return httpError("create lot", resp, err)
}

// httpError переводит ответ HTTP API в ошибку со статусом gRPC, чтобы отчёт считал
// коды одинаково для обоих транспортов.
func httpError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	message := resp.Status()
	if body, ok := resp.Error().(*checkoutv1.ErrorResponse); ok && body.Error.Message != "" {
		message = body.Error.Message
	}
	return status.Errorf(httpStatusCode(resp.StatusCode()), "%s: %s", op, message)
}

func httpStatusCode(code int) codes.Code {
	switch {
	case code == http.StatusNotFound:
		return codes.NotFound
	case code == http.StatusConflict:
		return codes.FailedPrecondition
	case code == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case code >= 500:
		return codes.Unavailable
	case code >= 400:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// seedStock заводит одну партию под весь прогон.
func seedStock(ctx context.Context, seeder stockSeeder, cfg config, runID string) error {
	if cfg.seedStock <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	return seeder.CreateLot(ctx, cfg.item, "load-"+runID, cfg.seedStock, time.Now().UTC().Add(seedLotShelfLife))
}

// runScenario проводит одного покупателя через корзину, заказ, оплату и, по режиму, отмену.
func runScenario(ctx context.Context, t targets, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	defer func() {
		col.record(scenarioMetric, time.Since(scenarioStart), grpcCode(err))
	}()

	userID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)

	if err := timed(ctx, col, "PutCartLine", cfg.timeout, func(ctx context.Context) error {
		return t.seeder.PutCartLine(ctx, userID, cfg.item, cfg.qty, cfg.unitPriceMinor)
	}); err != nil {
		return err
	}

	var order *checkoutv1.Order
	if err := timed(ctx, col, "PlaceOrder", cfg.timeout, func(ctx context.Context) error {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, fmt.Sprintf("lt-place-%s-%d", runID, index))
		resp, err := t.orders.PlaceOrder(ctx, &checkoutv1.PlaceOrderRequest{UserID: userID, AddressID: cfg.addressID})
		if err != nil {
			return err
		}
		order = resp.Order
		return nil
	}); err != nil {
		return err
	}
	if order == nil || order.ID == "" {
		return status.Error(codes.Internal, "place order returned empty order id")
	}

	if cfg.mode == modePlace {
		return nil
	}

	if err := timed(ctx, col, "ProcessPayment", cfg.timeout, func(ctx context.Context) error {
		resp, err := t.payments.ProcessPayment(ctx, &checkoutv1.ProcessPaymentRequest{
			OrderID:     order.ID,
			UserID:      userID,
			AmountMinor: order.TotalMinor,
			Currency:    cfg.currency,
			Method:      cfg.method,
		})
		if err != nil {
			return err
		}
		if resp.Payment == nil || resp.Payment.Status != paymentSucceeded {
			return status.Errorf(codes.Aborted, "payment for order %s not succeeded", order.ID)
		}
		return nil
	}); err != nil {
		return err
	}

	// Владелец отменяет только неоплаченный заказ, подтверждённый отменяет администратор.
	if cfg.mode == modePlacePayCancel || (cfg.mode == modePlacePay && shouldCancelScenario(index, cfg.cancelRate)) {
		return timed(ctx, col, "AdminCancel", cfg.timeout, func(ctx context.Context) error {
			ctx = metadata.AppendToOutgoingContext(ctx, userRoleHeader, adminRole)
			_, err := t.orders.UpdateOrderStatus(ctx, &checkoutv1.UpdateOrderStatusRequest{
				OrderID: order.ID,
				Status:  orderCancelled,
			})
			return err
		})
	}
	return nil
}

// timed выполняет шаг с собственным таймаутом и записывает его задержку.
func timed(ctx context.Context, col *collector, step string, timeout time.Duration, call func(context.Context) error) error {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := call(callCtx)
	col.record(step, time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
