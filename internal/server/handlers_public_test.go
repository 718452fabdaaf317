package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"streamingplus/internal/domain"
)

func TestListBannersOnlyVisible(t *testing.T) {
	env := newTestEnv(t)
	live := env.createBanner(t, "live", "10", nil)
	env.createBanner(t, "off", "10", func(b *domain.Banner) { b.Active = false })
	env.createBanner(t, "soon", "10", func(b *domain.Banner) { b.StartDate = t0.Add(time.Hour) })
	env.createBanner(t, "ended", "10", func(b *domain.Banner) {
		b.StartDate = t0.Add(-48 * time.Hour)
		b.ExpirationDate = t0
	})

	rec := env.do(t, http.MethodGet, "/api/banners", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var banners []publicBanner
	decode(t, rec, &banners)
	if len(banners) != 1 || banners[0].ID != live.ID {
		t.Fatalf("banners = %+v", banners)
	}
	if banners[0].Status != "active" {
		t.Errorf("status = %s", banners[0].Status)
	}
}

func TestGetBanner(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "live", "10", nil)

	if rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/banners/%d", b.ID), nil, ""); rec.Code != http.StatusOK {
		t.Errorf("existing banner = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/banners/999", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing banner = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/banners/abc", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", rec.Code)
	}
}

func TestBannerClickCountsViews(t *testing.T) {
	env := newTestEnv(t)
	paid := env.createBanner(t, "paid", "29.90", nil)
	free := env.createBanner(t, "free", "0", nil)

	var resp clickResponse
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/banners/%d/click", paid.ID), nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("click status = %d", rec.Code)
		}
		decode(t, rec, &resp)
	}
	if resp.ViewCount != 2 || !resp.RequiresEmail || resp.WatchURL != "" {
		t.Errorf("paid click = %+v", resp)
	}

	stats, err := env.repos.Stats.ListByBanner(context.Background(), paid.ID)
	if err != nil || len(stats) != 1 || stats[0].Day != "2024-03-10" || stats[0].Views != 2 {
		t.Errorf("daily stats = %+v, %v", stats, err)
	}

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/banners/%d/click", free.ID), nil, "")
	decode(t, rec, &resp)
	if !resp.Free || resp.RequiresEmail || resp.WatchURL == "" {
		t.Errorf("free click = %+v", resp)
	}
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	paid := env.createBanner(t, "paid", "29.90", nil)
	free := env.createBanner(t, "free", "0", nil)
	embed := env.createBanner(t, "embed", "0", func(b *domain.Banner) {
		b.StreamURL = ""
		b.EmbedCode = `<iframe src="https://player.example.com/1"></iframe>`
	})

	t.Run("client flags do not grant access", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/watch/%d?email=u@test.com&free=true&purchased=true", paid.ID), nil, "")
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp paymentRequiredResponse
		decode(t, rec, &resp)
		if resp.BannerID != paid.ID || resp.Checkout == "" {
			t.Errorf("body = %+v", resp)
		}
	})

	t.Run("free banner plays without email", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/watch/%d", free.ID), nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp watchResponse
		decode(t, rec, &resp)
		if resp.Playback.Kind != PlaybackHLS {
			t.Errorf("playback = %+v", resp.Playback)
		}
	})

	t.Run("embed wins over url", func(t *testing.T) {
		var resp watchResponse
		decode(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/watch/%d", embed.ID), nil, ""), &resp)
		if resp.Playback.Kind != PlaybackEmbed || resp.Playback.EmbedCode == "" {
			t.Errorf("playback = %+v", resp.Playback)
		}
	})

	t.Run("missing banner", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/api/watch/999", nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("purchase grants access until expiration", func(t *testing.T) {
		_, err := env.ledger.RecordFromBanner(context.Background(), paid, "u@test.com", t0)
		if err != nil {
			t.Fatalf("RecordFromBanner: %v", err)
		}
		path := fmt.Sprintf("/api/watch/%d?email=U@Test.com", paid.ID)

		if rec := env.do(t, http.MethodGet, path, nil, ""); rec.Code != http.StatusOK {
			t.Errorf("after purchase = %d", rec.Code)
		}

		env.clock.Set(paid.ExpirationDate)
		defer env.clock.Set(t0)
		if rec := env.do(t, http.MethodGet, path, nil, ""); rec.Code != http.StatusPaymentRequired {
			t.Errorf("at expiration = %d", rec.Code)
		}
	})
}

func TestDescribePlayback(t *testing.T) {
	tests := []struct {
		name string
		b    domain.Banner
		want string
	}{
		{"hls", domain.Banner{StreamURL: "https://cdn/live/INDEX.M3U8?token=1"}, PlaybackHLS},
		{"mp4", domain.Banner{StreamURL: "https://cdn/video.mp4"}, PlaybackNative},
		{"embed", domain.Banner{StreamURL: "https://cdn/live.m3u8", EmbedCode: "<iframe>"}, PlaybackEmbed},
		{"blank embed", domain.Banner{StreamURL: "https://cdn/video.mp4", EmbedCode: "  "}, PlaybackNative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describePlayback(&tt.b); got.Kind != tt.want {
				t.Errorf("describePlayback() = %s, want %s", got.Kind, tt.want)
			}
		})
	}
}

func TestPurchaseSearch(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "paid", "29.90", nil)
	env.ledger.RecordFromBanner(context.Background(), b, "u@test.com", t0.Add(-time.Hour))

	if rec := env.do(t, http.MethodGet, "/api/purchases?email=nope", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid email = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/purchases?email=U@TEST.COM", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rows []purchaseRow
	decode(t, rec, &rows)
	if len(rows) != 1 || rows[0].Expired || rows[0].BannerTitle != "paid" || rows[0].WatchURL == "" {
		t.Errorf("rows = %+v", rows)
	}
}
