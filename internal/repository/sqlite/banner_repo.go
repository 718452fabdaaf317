package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"
)

// BannerRepo implements repository.BannerRepository
type BannerRepo struct {
	db *DB
}

func NewBannerRepo(db *DB) repository.BannerRepository {
	return &BannerRepo{db: db}
}

const bannerColumns = `id, title, price, stream_url, embed_code, start_date, expiration_date, active, pix_key, view_count, thumbnail, created_at, updated_at`

func (r *BannerRepo) Create(ctx context.Context, b *domain.Banner) error {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	query := `INSERT INTO banners (title, price, stream_url, embed_code, start_date, expiration_date, active, pix_key, thumbnail, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		b.Title, b.Price.String(), b.StreamURL, b.EmbedCode,
		formatTime(b.StartDate), formatTime(b.ExpirationDate),
		b.Active, b.PixKey, b.Thumbnail,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return storeErr("create banner", err)
	}
	id, _ := result.LastInsertId()
	b.ID = id
	return nil
}

func (r *BannerRepo) GetByID(ctx context.Context, id int64) (*domain.Banner, error) {
	query := `SELECT ` + bannerColumns + ` FROM banners WHERE id = ?`
	b, err := scanBanner(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("banner %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get banner", err)
	}
	return b, nil
}

// Update rewrites the editable fields; view_count and created_at are left alone
func (r *BannerRepo) Update(ctx context.Context, b *domain.Banner) error {
	b.UpdatedAt = time.Now().UTC()

	query := `UPDATE banners SET title = ?, price = ?, stream_url = ?, embed_code = ?, start_date = ?,
			  expiration_date = ?, active = ?, pix_key = ?, thumbnail = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		b.Title, b.Price.String(), b.StreamURL, b.EmbedCode,
		formatTime(b.StartDate), formatTime(b.ExpirationDate),
		b.Active, b.PixKey, b.Thumbnail, formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return storeErr("update banner", err)
	}
	return requireRow(result, "banner", b.ID)
}

func (r *BannerRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM banners WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete banner", err)
	}
	return requireRow(result, "banner", id)
}

// List returns every banner, newest first
func (r *BannerRepo) List(ctx context.Context) ([]domain.Banner, error) {
	query := `SELECT ` + bannerColumns + ` FROM banners ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list banners", err)
	}
	defer rows.Close()

	banners := []domain.Banner{}
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, storeErr("scan banner", err)
		}
		banners = append(banners, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list banners", err)
	}
	return banners, nil
}

func (r *BannerRepo) IncrementViews(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE banners SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return storeErr("increment views", err)
	}
	return requireRow(result, "banner", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBanner(row rowScanner) (*domain.Banner, error) {
	var b domain.Banner
	var start, expiration, created, updated string
	err := row.Scan(&b.ID, &b.Title, &b.Price, &b.StreamURL, &b.EmbedCode, &start, &expiration,
		&b.Active, &b.PixKey, &b.ViewCount, &b.Thumbnail, &created, &updated)
	if err != nil {
		return nil, err
	}
	if b.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.ExpirationDate, err = parseTime(expiration); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}

func requireRow(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storeErr("read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
