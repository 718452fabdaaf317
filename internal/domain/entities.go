// Package domain defines core business entities
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Banner represents a scheduled, priced broadcast offer
type Banner struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"` // zero means free
	StreamURL      string          `json:"stream_url"`
	EmbedCode      string          `json:"embed_code,omitempty"`
	StartDate      time.Time       `json:"start_date"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Active         bool            `json:"active"`
	PixKey         string          `json:"pix_key,omitempty"`
	ViewCount      int64           `json:"view_count"`
	Thumbnail      string          `json:"thumbnail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsFree reports whether the banner can be watched without paying
func (b *Banner) IsFree() bool {
	return b.Price.IsZero()
}

// Validate checks the fields an administrator must provide
func (b *Banner) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if strings.TrimSpace(b.StreamURL) == "" && strings.TrimSpace(b.EmbedCode) == "" {
		return NewValidationError("stream_url", "stream url or embed code is required")
	}
	if b.Price.IsNegative() {
		return NewValidationError("price", "must not be negative")
	}
	if b.StartDate.IsZero() || b.ExpirationDate.IsZero() {
		return NewValidationError("start_date", "start and expiration dates are required")
	}
	if !b.ExpirationDate.After(b.StartDate) {
		return NewValidationError("expiration_date", "must be after start_date")
	}
	return nil
}

// Purchase is an immutable grant tying an email to a banner for a bounded window.
// BannerTitle, StreamURL and ExpirationDate are snapshots of the banner at purchase
// time and do not follow later banner edits.
type Purchase struct {
	ID             int64           `json:"id"`
	Email          string          `json:"email"`
	BannerID       int64           `json:"banner_id"`
	Price          decimal.Decimal `json:"price"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	ExpirationDate time.Time       `json:"expiration_date"`
	BannerTitle    string          `json:"banner_title"`
	StreamURL      string          `json:"stream_url"`
}

// ValidAt reports whether the purchase still grants access at now
func (p *Purchase) ValidAt(now time.Time) bool {
	return p.ExpirationDate.After(now)
}

// Payment transaction statuses
const (
	TransactionConfirmed = "confirmed"
	TransactionCancelled = "cancelled"
)

// PaymentTransaction records the outcome of a checkout session
type PaymentTransaction struct {
	ID          string          `json:"id"`
	BannerID    int64           `json:"banner_id"`
	Email       string          `json:"email"`
	Amount      decimal.Decimal `json:"amount"`
	PixKey      string          `json:"pix_key,omitempty"`
	Status      string          `json:"status"`
	PurchaseID  int64           `json:"purchase_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// StreamingStat is a per-banner, per-day view counter
type StreamingStat struct {
	BannerID int64  `json:"banner_id"`
	Day      string `json:"day"` // YYYY-MM-DD, UTC
	Views    int64  `json:"views"`
}

// Customer is derived from purchases and never stored
type Customer struct {
	Email         string          `json:"email"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	PurchaseCount int             `json:"purchase_count"`
	FirstPurchase time.Time       `json:"first_purchase"`
	LastPurchase  time.Time       `json:"last_purchase"`
}

// DailyRevenue is one bucket of the revenue-by-day report
type DailyRevenue struct {
	Date          time.Time       `json:"date"`
	Revenue       decimal.Decimal `json:"revenue"`
	PurchaseCount int             `json:"purchase_count"`
}

// DashboardStats holds the headline numbers of the admin dashboard
type DashboardStats struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalPurchases int             `json:"total_purchases"`
	ActiveBanners  int             `json:"active_banners"`
	UniqueUsers    int             `json:"unique_users"`
}

// Settings keys
const (
	SettingSiteName      = "site_name"
	SettingDefaultPixKey = "default_pix_key"
)
