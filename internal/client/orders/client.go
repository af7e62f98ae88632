// Package orders: gRPC-клиент сервиса заказов, которым сервис платежей финализирует заказ.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config: настройки клиента сервиса заказов.
type Config struct {
	Address string
	// Timeout ограничивает каждый вызов сервиса заказов.
	Timeout time.Duration
	Breaker resilience.BreakerSettings
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Address: "localhost:50051",
		Timeout: 5 * time.Second,
		Breaker: resilience.DefaultBreakerSettings(),
	}
}

// Client реализует domain.OrderFinalizer и domain.OrderReader поверх gRPC.
// Все вызовы идут с ролью x-user-role: service.
type Client struct {
	rpc     checkoutv1.OrderServiceClient
	conn    *grpc.ClientConn
	timeout time.Duration
	breaker *resilience.Breaker
	logger  *log.Entry
}

// Dial открывает соединение с сервисом заказов.
func Dial(cfg Config, logger *log.Entry) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		checkoutv1.DialOption(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial order service %s: %w", cfg.Address, err)
	}
	c := New(conn, cfg, logger)
	c.conn = conn
	return c, nil
}

// New создаёт клиент поверх готового соединения.
func New(cc grpc.ClientConnInterface, cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "order-client")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		rpc:     checkoutv1.NewOrderServiceClient(cc),
		timeout: cfg.Timeout,
		breaker: resilience.NewBreaker("orders", "orders", cfg.Breaker,
			resilience.WithLogger(logger),
			resilience.WithBenignErrors(isBusinessError),
		),
		logger: logger,
	}
}

// FinalizePayment просит сервис заказов подтвердить оплаченный заказ.
// Повторный вызов безопасен: сервис заказов финализирует заказ один раз.
func (c *Client) FinalizePayment(ctx context.Context, orderID, userID string) error {
	return c.breaker.Do(func() error {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		_, err := c.rpc.FinalizePayment(callCtx, &checkoutv1.FinalizePaymentRequest{OrderID: orderID, UserID: userID})
		if err != nil {
			return fromStatus("finalize order "+orderID, err)
		}
		return nil
	}, domain.ErrOrderServiceTemporary)
}

// GetOrder читает заказ пользователя, чтобы сверить владельца, статус и сумму перед оплатой.
func (c *Client) GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	var order domain.Order
	err := c.breaker.Do(func() error {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		resp, err := c.rpc.GetOrder(callCtx, &checkoutv1.GetOrderRequest{OrderID: orderID, UserID: userID})
		if err != nil {
			return fromStatus("get order "+orderID, err)
		}
		if resp.Order == nil {
			return fmt.Errorf("get order %s: %w", orderID, domain.ErrOrderNotFound)
		}
		order = fromAPIOrder(resp.Order)
		return nil
	}, domain.ErrOrderServiceTemporary)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = metadata.AppendToOutgoingContext(ctx, userRoleHeader, serviceRole)
	return context.WithTimeout(ctx, c.timeout)
}

// State возвращает состояние circuit breaker.
func (c *Client) State() string {
	return c.breaker.State()
}

// Close закрывает соединение, если клиент открыл его сам.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

const (
	userRoleHeader = "x-user-role"
	serviceRole    = "service"
)

func fromAPIOrder(o *checkoutv1.Order) domain.Order {
	lines := make([]domain.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, domain.OrderLine{
			ID:             l.ID,
			ItemID:         l.ItemID,
			LotID:          l.LotID,
			Qty:            l.Qty,
			UnitPriceMinor: l.UnitPriceMinor,
			SubtotalMinor:  l.SubtotalMinor,
		})
	}
	return domain.Order{
		ID:           o.ID,
		UserID:       o.UserID,
		AddressID:    o.AddressID,
		Status:       domain.OrderStatus(o.Status),
		TotalMinor:   o.TotalMinor,
		Lines:        lines,
		DeliveryDate: o.DeliveryDate,
		FinalizedAt:  o.FinalizedAt,
		Version:      o.Version,
		OrderedAt:    o.OrderedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return resilience.TransportError(op, err, domain.ErrOrderServiceTemporary)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
	case codes.PermissionDenied:
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidTransition, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrOutcomeUnknown, st.Message())
	case codes.Internal:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrOrderPersist, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%s: invalid request: %s", op, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%s: %w", op, context.Canceled)
	default:
		return fmt.Errorf("%s: %w: %s: %s", op, domain.ErrOrderServiceTemporary, st.Code(), st.Message())
	}
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrInvalidTransition)
}

var (
	_ domain.OrderFinalizer = (*Client)(nil)
	_ domain.OrderReader    = (*Client)(nil)
)
