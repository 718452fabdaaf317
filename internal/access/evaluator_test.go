package access

import (
	"context"
	"testing"
	"time"

	"streamingplus/internal/domain"
)

func TestHasAccessFreeBanner(t *testing.T) {
	l, _ := newLedger()
	e := NewEvaluator(l)
	free := &domain.Banner{ID: 1, Price: money("0"), StartDate: t0, ExpirationDate: t0.Add(time.Hour)}

	for _, email := range []string{"", "u@test.com", "not-an-email"} {
		ok, err := e.HasAccess(context.Background(), free, email, t0.Add(48*time.Hour))
		if err != nil || !ok {
			t.Errorf("HasAccess(%q) = %v, %v", email, ok, err)
		}
	}
}

func TestHasAccessPaidBannerNeedsPurchase(t *testing.T) {
	l, _ := newLedger()
	e := NewEvaluator(l)
	paid := &domain.Banner{ID: 1, Price: money("29.90"), Active: true, StartDate: t0, ExpirationDate: t0.Add(7 * 24 * time.Hour)}

	for _, email := range []string{"", "u@test.com"} {
		ok, err := e.HasAccess(context.Background(), paid, email, t0.Add(time.Hour))
		if err != nil || ok {
			t.Errorf("HasAccess(%q) = %v, %v", email, ok, err)
		}
	}
}

// The banner window is not consulted: a switched-off banner stays playable
// for a viewer holding an unexpired purchase.
func TestHasAccessIgnoresBannerStatus(t *testing.T) {
	l, _ := newLedger()
	e := NewEvaluator(l)
	paid := &domain.Banner{ID: 1, Price: money("10"), Active: false, StartDate: t0, ExpirationDate: t0.Add(time.Hour)}

	record(t, l, "u@test.com", 1, "10", t0, t0.Add(48*time.Hour))

	ok, err := e.HasAccess(context.Background(), paid, "u@test.com", t0.Add(2*time.Hour))
	if err != nil || !ok {
		t.Errorf("HasAccess() = %v, %v", ok, err)
	}
}

func TestPurchaseGrantsAccessUntilExpiration(t *testing.T) {
	ctx := context.Background()
	day := 24 * time.Hour

	l, _ := newLedger()
	e := NewEvaluator(l)
	b := &domain.Banner{ID: 42, Title: "Final", Price: money("29.90"), Active: true, StartDate: t0, ExpirationDate: t0.Add(7 * day)}

	ok, err := e.HasAccess(ctx, b, "u@test.com", t0.Add(day))
	if err != nil || ok {
		t.Fatalf("before purchase: %v, %v", ok, err)
	}

	_, err = l.Record(ctx, domain.Purchase{
		Email:          "u@test.com",
		BannerID:       b.ID,
		Price:          money("29.90"),
		PurchaseDate:   t0.Add(day),
		ExpirationDate: t0.Add(7 * day),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if ok, err := e.HasAccess(ctx, b, "u@test.com", t0.Add(2*day)); err != nil || !ok {
		t.Errorf("after purchase: %v, %v", ok, err)
	}
	if ok, err := e.HasAccess(ctx, b, "U@TEST.com ", t0.Add(2*day)); err != nil || !ok {
		t.Errorf("after purchase, unnormalized email: %v, %v", ok, err)
	}
	if ok, err := e.HasAccess(ctx, b, "u@test.com", t0.Add(8*day)); err != nil || ok {
		t.Errorf("after expiration: %v, %v", ok, err)
	}
}
