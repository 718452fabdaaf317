package sqlite

import (
	"context"
	"database/sql"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"
)

// TransactionRepo implements repository.PaymentTransactionRepository
type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) repository.PaymentTransactionRepository {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	purchaseID := sql.NullInt64{Int64: tx.PurchaseID, Valid: tx.PurchaseID > 0}

	query := `INSERT INTO payment_transactions (id, banner_id, email, amount, pix_key, status, purchase_id, created_at, completed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.BannerID, tx.Email, tx.Amount.String(), tx.PixKey, tx.Status, purchaseID,
		formatTime(tx.CreatedAt), formatTime(tx.CompletedAt))
	if err != nil {
		return storeErr("create payment transaction", err)
	}
	return nil
}

// List returns the most recent transactions first; limit <= 0 means no limit
func (r *TransactionRepo) List(ctx context.Context, limit int) ([]domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, banner_id, email, amount, pix_key, status, purchase_id, created_at, completed_at
			  FROM payment_transactions ORDER BY completed_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeErr("list payment transactions", err)
	}
	defer rows.Close()

	txs := []domain.PaymentTransaction{}
	for rows.Next() {
		var tx domain.PaymentTransaction
		var purchaseID sql.NullInt64
		var created, completed string
		if err := rows.Scan(&tx.ID, &tx.BannerID, &tx.Email, &tx.Amount, &tx.PixKey, &tx.Status,
			&purchaseID, &created, &completed); err != nil {
			return nil, storeErr("scan payment transaction", err)
		}
		tx.PurchaseID = purchaseID.Int64
		if tx.CreatedAt, err = parseTime(created); err != nil {
			return nil, storeErr("scan payment transaction", err)
		}
		if tx.CompletedAt, err = parseTime(completed); err != nil {
			return nil, storeErr("scan payment transaction", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list payment transactions", err)
	}
	return txs, nil
}
