package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"
)

// PurchaseRepo implements repository.PurchaseRepository
type PurchaseRepo struct {
	db *DB
}

func NewPurchaseRepo(db *DB) repository.PurchaseRepository {
	return &PurchaseRepo{db: db}
}

const purchaseColumns = `id, email, banner_id, price, purchase_date, expiration_date, banner_title, stream_url`

func (r *PurchaseRepo) Create(ctx context.Context, p *domain.Purchase) error {
	query := `INSERT INTO purchases (email, banner_id, price, purchase_date, expiration_date, banner_title, stream_url)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		p.Email, p.BannerID, p.Price.String(),
		formatTime(p.PurchaseDate), formatTime(p.ExpirationDate),
		p.BannerTitle, p.StreamURL)
	if err != nil {
		return storeErr("create purchase", err)
	}
	id, _ := result.LastInsertId()
	p.ID = id
	return nil
}

func (r *PurchaseRepo) GetByID(ctx context.Context, id int64) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`
	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get purchase", err)
	}
	return p, nil
}

// ListByEmail expects an already normalized email
func (r *PurchaseRepo) ListByEmail(ctx context.Context, email string) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE email = ? ORDER BY purchase_date DESC, id DESC`
	return r.list(ctx, "list purchases by email", query, email)
}

func (r *PurchaseRepo) ListByEmailAndBanner(ctx context.Context, email string, bannerID int64) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE email = ? AND banner_id = ? ORDER BY purchase_date DESC, id DESC`
	return r.list(ctx, "list purchases by banner", query, email, bannerID)
}

func (r *PurchaseRepo) List(ctx context.Context) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases ORDER BY purchase_date DESC, id DESC`
	return r.list(ctx, "list purchases", query)
}

func (r *PurchaseRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.Purchase, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	purchases := []domain.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, storeErr("scan purchase", err)
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return purchases, nil
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var purchased, expires string
	if err := row.Scan(&p.ID, &p.Email, &p.BannerID, &p.Price, &purchased, &expires, &p.BannerTitle, &p.StreamURL); err != nil {
		return nil, err
	}
	var err error
	if p.PurchaseDate, err = parseTime(purchased); err != nil {
		return nil, err
	}
	if p.ExpirationDate, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &p, nil
}
