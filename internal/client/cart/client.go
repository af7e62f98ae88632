// Package cart: HTTP-клиент сервиса корзины, реализующий domain.CartService.
package cart

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config: настройки клиента корзины.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker resilience.BreakerSettings
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8082",
		Timeout: 2 * time.Second,
		Breaker: resilience.DefaultBreakerSettings(),
	}
}

// Client вызывает HTTP API корзины через circuit breaker.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
}

// New создаёт клиент корзины.
func New(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "cart-client")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetHeader("Content-Type", "application/json"),
		breaker: resilience.NewBreaker("cart", "cart", cfg.Breaker, resilience.WithLogger(logger)),
	}
}

// GetCartLines возвращает строки корзины пользователя.
func (c *Client) GetCartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	var out checkoutv1.CartResponse
	err := c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&checkoutv1.ErrorResponse{}).
			Get("/api/v1/carts/" + url.PathEscape(userID))
		if err != nil {
			return resilience.TransportError("get cart", err, domain.ErrCartTemporary)
		}
		return statusError("get cart", resp)
	}, domain.ErrCartTemporary)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(out.Lines))
	for _, line := range out.Lines {
		lines = append(lines, domain.CartLine{
			UserID:         userID,
			ItemID:         line.ItemID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			AddedAt:        line.AddedAt,
		})
	}
	return lines, nil
}

// ClearCart очищает корзину; операция идемпотентна на стороне сервиса.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	return c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetError(&checkoutv1.ErrorResponse{}).
			Delete("/api/v1/carts/" + url.PathEscape(userID))
		if err != nil {
			return resilience.TransportError("clear cart", err, domain.ErrCartTemporary)
		}
		return statusError("clear cart", resp)
	}, domain.ErrCartTemporary)
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
	return fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrCartTemporary, resp.StatusCode(), message)
}

var _ domain.CartService = (*Client)(nil)
