package access

import (
	"context"
	"time"

	"streamingplus/internal/domain"
)

// AccessChecker answers whether a viewer holds an unexpired purchase
type AccessChecker interface {
	HasValidAccess(ctx context.Context, email string, bannerID int64, now time.Time) (bool, error)
}

// Evaluator is the single authority for viewing rights
type Evaluator struct {
	purchases AccessChecker
}

// NewEvaluator creates an Evaluator backed by the purchase ledger
func NewEvaluator(purchases AccessChecker) *Evaluator {
	return &Evaluator{purchases: purchases}
}

// HasAccess reports whether viewerEmail may watch banner at now.
// Free banners are open to anyone. Paid banners need an unexpired purchase;
// the banner's own window is not consulted.
func (e *Evaluator) HasAccess(ctx context.Context, banner *domain.Banner, viewerEmail string, now time.Time) (bool, error) {
	if banner.IsFree() {
		return true, nil
	}
	if !domain.ValidEmail(viewerEmail) {
		return false, nil
	}
	return e.purchases.HasValidAccess(ctx, domain.NormalizeEmail(viewerEmail), banner.ID, now)
}
