// Package repository defines interfaces for data persistence
package repository

import (
	"context"

	"streamingplus/internal/domain"
)

// BannerRepository defines the interface for banner data operations.
// Missing ids yield domain.ErrNotFound; driver failures wrap domain.ErrStoreUnavailable.
type BannerRepository interface {
	Create(ctx context.Context, banner *domain.Banner) error
	GetByID(ctx context.Context, id int64) (*domain.Banner, error)
	Update(ctx context.Context, banner *domain.Banner) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Banner, error)
	IncrementViews(ctx context.Context, id int64) error
}

// PurchaseRepository is append-only: purchases are never updated
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *domain.Purchase) error
	GetByID(ctx context.Context, id int64) (*domain.Purchase, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Purchase, error)
	ListByEmailAndBanner(ctx context.Context, email string, bannerID int64) ([]domain.Purchase, error)
	List(ctx context.Context) ([]domain.Purchase, error)
}

// PaymentTransactionRepository stores checkout outcomes
type PaymentTransactionRepository interface {
	Create(ctx context.Context, tx *domain.PaymentTransaction) error
	List(ctx context.Context, limit int) ([]domain.PaymentTransaction, error)
}

// StreamingStatsRepository keeps per-day view counters
type StreamingStatsRepository interface {
	IncrementDaily(ctx context.Context, bannerID int64, day string) error
	ListByBanner(ctx context.Context, bannerID int64) ([]domain.StreamingStat, error)
}

// SettingsRepository handles application configuration
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Repositories bundles all repository interfaces
type Repositories struct {
	Banners      BannerRepository
	Purchases    PurchaseRepository
	Transactions PaymentTransactionRepository
	Stats        StreamingStatsRepository
	Settings     SettingsRepository
}
