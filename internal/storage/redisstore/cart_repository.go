// Package redisstore хранит корзины пользователей в Redis.
// Корзина хранится в hash "cart:user:<id>", где поле равно item_id, а значение содержит JSON строки.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// DefaultCartTTL: срок жизни корзины без изменений.
const DefaultCartTTL = 7 * 24 * time.Hour

const maxWatchRetries = 5

// CartRepository реализует domain.CartRepository поверх Redis.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewCartRepository создаёт репозиторий; ttl <= 0 заменяется на DefaultCartTTL.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration) *CartRepository {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartRepository{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewClient разбирает redis:// URL и проверяет соединение.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type storedLine struct {
	Qty            int32     `json:"qty"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	AddedAt        time.Time `json:"added_at"`
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

// Lines возвращает строки корзины в порядке добавления.
func (r *CartRepository) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	fields, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", userID, err)
	}

	lines := make([]domain.CartLine, 0, len(fields))
	for itemID, raw := range fields {
		var stored storedLine
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode cart line %s/%s: %w", userID, itemID, err)
		}
		lines = append(lines, domain.CartLine{
			UserID:         userID,
			ItemID:         itemID,
			Qty:            stored.Qty,
			UnitPriceMinor: stored.UnitPriceMinor,
			AddedAt:        stored.AddedAt,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ItemID < lines[j].ItemID
	})
	return lines, nil
}

// PutLine добавляет или заменяет строку, сохраняя исходное время добавления.
// qty <= 0 удаляет строку.
func (r *CartRepository) PutLine(ctx context.Context, line domain.CartLine) error {
	if line.UserID == "" {
		return domain.ErrUserRequired
	}
	if line.ItemID == "" {
		return domain.ErrItemRequired
	}
	if line.Qty <= 0 {
		return r.RemoveLine(ctx, line.UserID, line.ItemID)
	}
	if line.UnitPriceMinor < 0 {
		return domain.ErrItemPriceInvalid
	}

	key := cartKey(line.UserID)
	txf := func(tx *redis.Tx) error {
		addedAt := line.AddedAt
		raw, err := tx.HGet(ctx, key, line.ItemID).Result()
		switch {
		case err == nil:
			var existing storedLine
			if jsonErr := json.Unmarshal([]byte(raw), &existing); jsonErr == nil {
				addedAt = existing.AddedAt
			}
		case errors.Is(err, redis.Nil):
		default:
			return err
		}
		if addedAt.IsZero() {
			addedAt = r.now()
		}

		data, err := json.Marshal(storedLine{Qty: line.Qty, UnitPriceMinor: line.UnitPriceMinor, AddedAt: addedAt.UTC()})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, line.ItemID, data)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("put cart line %s/%s: %w", line.UserID, line.ItemID, err)
		}
		return nil
	}
	return fmt.Errorf("put cart line %s/%s: concurrent modification", line.UserID, line.ItemID)
}

func (r *CartRepository) RemoveLine(ctx context.Context, userID, itemID string) error {
	if err := r.client.HDel(ctx, cartKey(userID), itemID).Err(); err != nil {
		return fmt.Errorf("remove cart line %s/%s: %w", userID, itemID, err)
	}
	return nil
}

// Clear удаляет корзину целиком; очистка пустой корзины не ошибка.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", userID, err)
	}
	return nil
}

// Ping проверяет доступность Redis для readiness.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ domain.CartRepository = (*CartRepository)(nil)
