package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"

	"github.com/rs/zerolog"
)

// Ledger is the source of truth for purchase records
type Ledger struct {
	store  repository.PurchaseRepository
	logger zerolog.Logger
}

// NewLedger creates a Ledger on top of a purchase store
func NewLedger(store repository.PurchaseRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Record validates and appends a purchase, returning its id
func (l *Ledger) Record(ctx context.Context, p domain.Purchase) (int64, error) {
	if !domain.ValidEmail(p.Email) {
		return 0, domain.NewValidationError("email", "must be a valid address")
	}
	if p.BannerID <= 0 {
		return 0, domain.NewValidationError("banner_id", "is required")
	}
	if p.Price.IsNegative() {
		return 0, domain.NewValidationError("price", "must not be negative")
	}
	if !p.ExpirationDate.After(p.PurchaseDate) {
		return 0, domain.NewValidationError("expiration_date", "must be after purchase_date")
	}

	p.ID = 0
	p.Email = domain.NormalizeEmail(p.Email)
	p.PurchaseDate = p.PurchaseDate.UTC()
	p.ExpirationDate = p.ExpirationDate.UTC()

	if err := l.store.Create(ctx, &p); err != nil {
		return 0, fmt.Errorf("record purchase: %w", err)
	}

	l.logger.Info().
		Int64("purchase_id", p.ID).
		Int64("banner_id", p.BannerID).
		Str("email", p.Email).
		Str("price", p.Price.StringFixed(2)).
		Msg("Purchase recorded")

	return p.ID, nil
}

// RecordFromBanner records a purchase of banner by email at now, snapshotting
// the banner's title, stream url, price and expiration.
func (l *Ledger) RecordFromBanner(ctx context.Context, banner *domain.Banner, email string, now time.Time) (int64, error) {
	return l.Record(ctx, domain.Purchase{
		Email:          email,
		BannerID:       banner.ID,
		Price:          banner.Price,
		PurchaseDate:   now,
		ExpirationDate: banner.ExpirationDate,
		BannerTitle:    banner.Title,
		StreamURL:      banner.StreamURL,
	})
}

// FindByEmail returns every purchase for email, newest first
func (l *Ledger) FindByEmail(ctx context.Context, email string) ([]domain.Purchase, error) {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return []domain.Purchase{}, nil
	}

	purchases, err := l.store.ListByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find purchases: %w", err)
	}

	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].PurchaseDate.After(purchases[j].PurchaseDate)
	})
	return purchases, nil
}

// HasValidAccess reports whether email holds a purchase of bannerID expiring after now
func (l *Ledger) HasValidAccess(ctx context.Context, email string, bannerID int64, now time.Time) (bool, error) {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return false, nil
	}

	purchases, err := l.store.ListByEmailAndBanner(ctx, normalized, bannerID)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}

	for i := range purchases {
		if purchases[i].ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// All lists every purchase, newest first
func (l *Ledger) All(ctx context.Context) ([]domain.Purchase, error) {
	purchases, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].PurchaseDate.After(purchases[j].PurchaseDate)
	})
	return purchases, nil
}
