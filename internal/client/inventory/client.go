// Package inventory: HTTP-клиент сервиса склада, реализующий domain.InventoryService.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config: настройки клиента склада.
type Config struct {
	BaseURL string
	// Timeout ограничивает каждый HTTP-вызов.
	Timeout time.Duration
	Breaker resilience.BreakerSettings
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8081",
		Timeout: 2 * time.Second,
		Breaker: resilience.DefaultBreakerSettings(),
	}
}

// Client вызывает HTTP API склада через circuit breaker.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
	logger  *log.Entry
}

// New создаёт клиент склада.
func New(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "inventory-client")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http: httpClient,
		breaker: resilience.NewBreaker("inventory", "inventory", cfg.Breaker,
			resilience.WithLogger(logger),
			resilience.WithBenignErrors(isBusinessError),
		),
		logger: logger,
	}
}

// GetAvailableLots возвращает партии товара с положительным остатком по сроку годности.
func (c *Client) GetAvailableLots(ctx context.Context, itemID string) ([]domain.Lot, error) {
	var out checkoutv1.ListLotsResponse
	err := c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&checkoutv1.ErrorResponse{}).
			Get("/api/v1/items/" + url.PathEscape(itemID) + "/lots")
		if err != nil {
			return resilience.TransportError("list lots", err, domain.ErrInventoryTemporary)
		}
		return statusError("list lots", resp)
	}, domain.ErrInventoryTemporary)
	if err != nil {
		return nil, err
	}

	lots := make([]domain.Lot, 0, len(out.Lots))
	for _, lot := range out.Lots {
		lots = append(lots, domain.Lot{
			ID:           lot.ID,
			ItemID:       lot.ItemID,
			BatchNo:      lot.BatchNo,
			ExpiresAt:    lot.ExpiresAt,
			QtyAvailable: lot.QtyAvailable,
			QtyTotal:     lot.QtyTotal,
		})
	}
	return lots, nil
}

// DecrementLot списывает остаток партии. Таймаут возвращается как domain.ErrOutcomeUnknown:
// списание могло пройти, повторять его нужно с тем же Reference.
func (c *Client) DecrementLot(ctx context.Context, req domain.DecrementRequest) error {
	return c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(checkoutv1.DecrementLotRequest{Quantity: req.Qty, Reference: req.Reference}).
			SetError(&checkoutv1.ErrorResponse{}).
			Post("/api/v1/lots/" + url.PathEscape(req.LotID) + "/decrement")
		if err != nil {
			return resilience.TransportError("decrement lot "+req.LotID, err, domain.ErrInventoryTemporary)
		}
		return statusError("decrement lot "+req.LotID, resp)
	}, domain.ErrInventoryTemporary)
}

// State возвращает состояние circuit breaker.
func (c *Client) State() string {
	return c.breaker.State()
}

func statusError(op string, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	message := resp.Status()
	if body, ok := resp.Error().(*checkoutv1.ErrorResponse); ok && body.Error.Message != "" {
		message = body.Error.Message
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrInsufficientLotQuantity, message)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrLotNotFound)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidQuantity, message)
	case code == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrOutcomeUnknown, message)
	default:
		return fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrInventoryTemporary, code, message)
	}
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientLotQuantity) ||
		errors.Is(err, domain.ErrLotNotFound) ||
		errors.Is(err, domain.ErrInvalidQuantity)
}

var _ domain.InventoryService = (*Client)(nil)
