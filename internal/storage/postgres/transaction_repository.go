package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создаёт PostgreSQL-реализацию журнала транзакций.
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{db: store.DB()}
}

func (r *transactionRepository) Append(ctx context.Context, tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (id, payment_id, type, amount_minor, status, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.PaymentID, string(tx.Type), tx.AmountMinor, string(tx.Status), tx.Description, tx.CreatedAt); err != nil {
		return fmt.Errorf("append payment transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) ListByPayment(ctx context.Context, paymentID string) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payment_id, type, amount_minor, status, description, created_at
		FROM payment_transactions
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx             domain.Transaction
			txType, status string
		)
		if err := rows.Scan(&tx.ID, &tx.PaymentID, &txType, &tx.AmountMinor, &status, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment transaction: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		tx.Status = domain.TransactionStatus(status)
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment transactions: %w", err)
	}
	return result, nil
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)
