package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const paymentColumns = `id, order_id, user_id, amount_minor, currency, status, method, transaction_id,
	external_ref, failure_reason, paid_at, version, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

// CreateIfAbsent опирается на уникальность order_id: из параллельных вставок побеждает одна.
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, p domain.Payment) (domain.Payment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if p.Version == 0 {
		p.Version = 1
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id
	`,
		p.ID, p.OrderID, p.UserID, p.AmountMinor, p.Currency, string(p.Status), p.Method, p.TransactionID,
		p.ExternalRef, p.FailureReason, nullTime(p.PaidAt), p.Version, p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return p, true, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		existing, getErr := r.getBy(ctx, "order_id", p.OrderID)
		if getErr != nil {
			return domain.Payment{}, false, getErr
		}
		return existing, false, nil
	default:
		return domain.Payment{}, false, fmt.Errorf("insert payment: %w", err)
	}
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.getBy(ctx, "order_id", orderID)
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

// Save обновляет платёж, только если его версия не изменилась с момента чтения.
func (r *paymentRepository) Save(ctx context.Context, p domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    external_ref = $2,
		    failure_reason = $3,
		    paid_at = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(p.Status), p.ExternalRef, p.FailureReason, nullTime(p.PaidAt), p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.getBy(ctx, "id", p.ID); err != nil {
			return err
		}
		return domain.ErrPaymentVersionConflict
	}
	return nil
}

// getBy читает платёж по id или order_id; column подставляется только из констант пакета.
func (r *paymentRepository) getBy(ctx context.Context, column, value string) (domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p      domain.Payment
		status string
		paidAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.AmountMinor, &p.Currency, &status, &p.Method, &p.TransactionID,
		&p.ExternalRef, &p.FailureReason, &paidAt, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	p.PaidAt = timePtr(paidAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
