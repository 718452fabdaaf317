package access

import (
	"time"

	"streamingplus/internal/domain"
)

// BannerStatus is the temporal/administrative state of a banner
type BannerStatus string

const (
	StatusInactive  BannerStatus = "inactive"
	StatusScheduled BannerStatus = "scheduled"
	StatusActive    BannerStatus = "active"
	StatusExpired   BannerStatus = "expired"
)

// AllStatuses lists every status in dashboard order
var AllStatuses = []BannerStatus{StatusActive, StatusScheduled, StatusExpired, StatusInactive}

// Status classifies a banner at now. The active toggle wins over the dates.
func Status(b *domain.Banner, now time.Time) BannerStatus {
	switch {
	case !b.Active:
		return StatusInactive
	case now.Before(b.StartDate):
		return StatusScheduled
	case now.After(b.ExpirationDate):
		return StatusExpired
	default:
		return StatusActive
	}
}

// IsVisible reports whether the banner belongs in the public listing:
// active and start_date <= now < expiration_date.
func IsVisible(b *domain.Banner, now time.Time) bool {
	return b.Active && !b.StartDate.After(now) && b.ExpirationDate.After(now)
}

// VisibleBanners filters banners down to the public listing, keeping order
func VisibleBanners(banners []domain.Banner, now time.Time) []domain.Banner {
	visible := make([]domain.Banner, 0, len(banners))
	for i := range banners {
		if IsVisible(&banners[i], now) {
			visible = append(visible, banners[i])
		}
	}
	return visible
}

// CountByStatus counts banners per status, with every status present
func CountByStatus(banners []domain.Banner, now time.Time) map[BannerStatus]int {
	counts := make(map[BannerStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for i := range banners {
		counts[Status(&banners[i], now)]++
	}
	return counts
}
