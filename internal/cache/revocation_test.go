package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemorySessionRevocationStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionRevocationStore()

	id := uuid.New()
	other := uuid.New()

	if revoked, _ := store.IsRevoked(ctx, id); revoked {
		t.Fatal("fresh session reported as revoked")
	}

	if err := store.MarkRevoked(ctx, id, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, id); !revoked {
		t.Error("expected session to be revoked")
	}
	if revoked, _ := store.IsRevoked(ctx, other); revoked {
		t.Error("unrelated session reported as revoked")
	}
}

func TestMemorySessionRevocationStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionRevocationStore()

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	id := uuid.New()
	if err := store.MarkRevoked(ctx, id, clock.Add(10*time.Minute)); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}

	clock = clock.Add(11 * time.Minute)
	if revoked, _ := store.IsRevoked(ctx, id); revoked {
		t.Error("revocation should lapse once the token has expired")
	}
}

func TestMemorySessionRevocationStorePastExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionRevocationStore()

	id := uuid.New()
	if err := store.MarkRevoked(ctx, id, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, id); !revoked {
		t.Error("past expiry should still revoke for a grace period")
	}
}
