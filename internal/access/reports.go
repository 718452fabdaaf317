package access

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"streamingplus/internal/domain"

	"github.com/shopspring/decimal"
)

// CustomerOrder selects how the customer summary is sorted
type CustomerOrder string

const (
	OrderNewest  CustomerOrder = "newest"  // last purchase, most recent first
	OrderOldest  CustomerOrder = "oldest"  // first purchase, oldest first
	OrderHighest CustomerOrder = "highest" // total spent, highest first
	OrderMost    CustomerOrder = "most"    // purchase count, highest first
)

// ParseCustomerOrder maps a query value to a CustomerOrder; empty means newest
func ParseCustomerOrder(s string) (CustomerOrder, error) {
	switch CustomerOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderNewest:
		return OrderNewest, nil
	case OrderOldest:
		return OrderOldest, nil
	case OrderHighest:
		return OrderHighest, nil
	case OrderMost:
		return OrderMost, nil
	}
	return "", domain.NewValidationError("sort", "must be one of newest, oldest, highest, most")
}

// CustomerSummary groups every purchase by normalized email
func (l *Ledger) CustomerSummary(ctx context.Context, order CustomerOrder) ([]domain.Customer, error) {
	purchases, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return SummarizeCustomers(purchases, order), nil
}

// SummarizeCustomers aggregates purchases per customer. Customers appear in
// first-seen order before sorting, and ties keep that order.
func SummarizeCustomers(purchases []domain.Purchase, order CustomerOrder) []domain.Customer {
	index := make(map[string]int)
	customers := make([]domain.Customer, 0)

	for i := range purchases {
		p := &purchases[i]
		email := domain.NormalizeEmail(p.Email)

		pos, ok := index[email]
		if !ok {
			pos = len(customers)
			index[email] = pos
			customers = append(customers, domain.Customer{
				Email:         email,
				TotalSpent:    decimal.Zero,
				FirstPurchase: p.PurchaseDate,
				LastPurchase:  p.PurchaseDate,
			})
		}

		c := &customers[pos]
		c.TotalSpent = c.TotalSpent.Add(p.Price)
		c.PurchaseCount++
		if p.PurchaseDate.Before(c.FirstPurchase) {
			c.FirstPurchase = p.PurchaseDate
		}
		if p.PurchaseDate.After(c.LastPurchase) {
			c.LastPurchase = p.PurchaseDate
		}
	}

	var less func(a, b *domain.Customer) bool
	switch order {
	case OrderOldest:
		less = func(a, b *domain.Customer) bool { return a.FirstPurchase.Before(b.FirstPurchase) }
	case OrderHighest:
		less = func(a, b *domain.Customer) bool { return a.TotalSpent.GreaterThan(b.TotalSpent) }
	case OrderMost:
		less = func(a, b *domain.Customer) bool { return a.PurchaseCount > b.PurchaseCount }
	default:
		less = func(a, b *domain.Customer) bool { return a.LastPurchase.After(b.LastPurchase) }
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return less(&customers[i], &customers[j])
	})

	return customers
}

// SearchCustomers keeps customers whose email contains term, case-insensitively
func SearchCustomers(customers []domain.Customer, term string) []domain.Customer {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return customers
	}
	filtered := make([]domain.Customer, 0, len(customers))
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Email), term) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// MaxRevenueDays bounds the revenue report to one leap year of buckets
const MaxRevenueDays = 366

// RevenueByDay reports revenue for the trailing days calendar days ending on
// now's UTC date, oldest first.
func (l *Ledger) RevenueByDay(ctx context.Context, days int, now time.Time) ([]domain.DailyRevenue, error) {
	if days <= 0 || days > MaxRevenueDays {
		return nil, domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", MaxRevenueDays))
	}
	purchases, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return BucketRevenue(purchases, days, now), nil
}

// BucketRevenue places each purchase in bucket (today - purchase day); buckets
// 0 through days-1 are kept and returned oldest first. days is clamped to
// MaxRevenueDays.
func BucketRevenue(purchases []domain.Purchase, days int, now time.Time) []domain.DailyRevenue {
	if days <= 0 {
		return nil
	}
	if days > MaxRevenueDays {
		days = MaxRevenueDays
	}
	today := startOfDay(now)

	buckets := make([]domain.DailyRevenue, days)
	for i := range buckets {
		buckets[i] = domain.DailyRevenue{
			Date:    today.AddDate(0, 0, -(days - 1 - i)),
			Revenue: decimal.Zero,
		}
	}

	for i := range purchases {
		diff := daysBetween(startOfDay(purchases[i].PurchaseDate), today)
		if diff < 0 || diff > days-1 {
			continue
		}
		b := &buckets[days-1-diff]
		b.Revenue = b.Revenue.Add(purchases[i].Price)
		b.PurchaseCount++
	}

	return buckets
}

// DashboardTotals computes the dashboard headline numbers
func (l *Ledger) DashboardTotals(ctx context.Context, banners []domain.Banner, now time.Time) (domain.DashboardStats, error) {
	purchases, err := l.All(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return Totals(purchases, banners, now), nil
}

// Totals sums revenue, counts purchases and distinct customers, and counts
// banners that are switched on and not yet expired.
func Totals(purchases []domain.Purchase, banners []domain.Banner, now time.Time) domain.DashboardStats {
	stats := domain.DashboardStats{TotalRevenue: decimal.Zero}
	emails := make(map[string]struct{})

	for i := range purchases {
		stats.TotalRevenue = stats.TotalRevenue.Add(purchases[i].Price)
		emails[domain.NormalizeEmail(purchases[i].Email)] = struct{}{}
	}
	stats.TotalPurchases = len(purchases)
	stats.UniqueUsers = len(emails)

	for i := range banners {
		if banners[i].Active && banners[i].ExpirationDate.After(now) {
			stats.ActiveBanners++
		}
	}
	return stats
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b; both must be UTC midnights
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour).Hours() / 24)
}
