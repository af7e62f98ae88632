package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const lotColumns = `id, item_id, batch_no, expires_at, qty_available, qty_total, version, created_at, updated_at`

type lotRepository struct {
	db *sql.DB
}

// NewLotRepository создаёт PostgreSQL-реализацию хранилища партий.
func NewLotRepository(store *Store) domain.LotRepository {
	return &lotRepository{db: store.DB()}
}

func (r *lotRepository) Create(ctx context.Context, lot domain.Lot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = now
	}
	if lot.UpdatedAt.IsZero() {
		lot.UpdatedAt = lot.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		lot.ID, lot.ItemID, lot.BatchNo, lot.ExpiresAt.UTC(), lot.QtyAvailable, lot.QtyTotal,
		lot.Version, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLotExists
		}
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (r *lotRepository) Get(ctx context.Context, id string) (domain.Lot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	lot, err := scanLot(r.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lot{}, domain.ErrLotNotFound
		}
		return domain.Lot{}, fmt.Errorf("select lot: %w", err)
	}
	return lot, nil
}

func (r *lotRepository) ListAvailable(ctx context.Context, itemID string) ([]domain.Lot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE item_id = $1
		  AND qty_available > 0
		ORDER BY expires_at ASC, id ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	lots := make([]domain.Lot, 0)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return lots, nil
}

// Decrement в одной транзакции регистрирует reference и условно уменьшает остаток.
// Уже применённый reference завершает вызов без изменений.
func (r *lotRepository) Decrement(ctx context.Context, req domain.DecrementRequest) error {
	if req.Qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if req.Reference != "" {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO lot_decrements (reference, lot_id, qty, applied_at)
				SELECT $1, id, $3, $4 FROM lots WHERE id = $2
				ON CONFLICT (reference) DO NOTHING
			`, req.Reference, req.LotID, req.Qty, now)
			if err != nil {
				return fmt.Errorf("register lot decrement: %w", err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if inserted == 0 {
				applied, err := referenceApplied(ctx, tx, req.Reference)
				if err != nil {
					return err
				}
				if applied {
					return nil
				}
				return domain.ErrLotNotFound
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE lots
			SET qty_available = qty_available - $2,
			    version = version + 1,
			    updated_at = $3
			WHERE id = $1
			  AND qty_available >= $2
		`, req.LotID, req.Qty, now)
		if err != nil {
			return fmt.Errorf("decrement lot: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var id string
			err := tx.QueryRowContext(ctx, `SELECT id FROM lots WHERE id = $1`, req.LotID).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrLotNotFound
			}
			if err != nil {
				return fmt.Errorf("check lot exists: %w", err)
			}
			return domain.ErrInsufficientLotQuantity
		}
		return nil
	})
}

func referenceApplied(ctx context.Context, tx *sql.Tx, reference string) (bool, error) {
	var ref string
	err := tx.QueryRowContext(ctx, `SELECT reference FROM lot_decrements WHERE reference = $1`, reference).Scan(&ref)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check lot decrement reference: %w", err)
}

func scanLot(row rowScanner) (domain.Lot, error) {
	var lot domain.Lot
	if err := row.Scan(
		&lot.ID, &lot.ItemID, &lot.BatchNo, &lot.ExpiresAt, &lot.QtyAvailable, &lot.QtyTotal,
		&lot.Version, &lot.CreatedAt, &lot.UpdatedAt,
	); err != nil {
		return domain.Lot{}, err
	}
	lot.ExpiresAt = lot.ExpiresAt.UTC()
	lot.CreatedAt = lot.CreatedAt.UTC()
	lot.UpdatedAt = lot.UpdatedAt.UTC()
	return lot, nil
}

var _ domain.LotRepository = (*lotRepository)(nil)
