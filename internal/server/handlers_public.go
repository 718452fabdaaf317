package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamingplus/internal/access"
	"streamingplus/internal/domain"

	"github.com/shopspring/decimal"
)

// publicBanner is what viewers see; stream details stay behind /watch
type publicBanner struct {
	ID             int64               `json:"id"`
	Title          string              `json:"title"`
	Price          decimal.Decimal     `json:"price"`
	Free           bool                `json:"free"`
	StartDate      time.Time           `json:"start_date"`
	ExpirationDate time.Time           `json:"expiration_date"`
	Thumbnail      string              `json:"thumbnail,omitempty"`
	ViewCount      int64               `json:"view_count"`
	Status         access.BannerStatus `json:"status"`
}

func toPublicBanner(b *domain.Banner, now time.Time) publicBanner {
	return publicBanner{
		ID:             b.ID,
		Title:          b.Title,
		Price:          b.Price,
		Free:           b.IsFree(),
		StartDate:      b.StartDate,
		ExpirationDate: b.ExpirationDate,
		Thumbnail:      b.Thumbnail,
		ViewCount:      b.ViewCount,
		Status:         access.Status(b, now),
	}
}

// Playback kinds
const (
	PlaybackEmbed  = "embed"
	PlaybackHLS    = "hls"
	PlaybackNative = "native"
)

// playback tells the player how to open the stream
type playback struct {
	Kind      string `json:"kind"`
	URL       string `json:"url,omitempty"`
	EmbedCode string `json:"embed_code,omitempty"`
}

// describePlayback prefers the embed snippet, then HLS manifests, then native playback
func describePlayback(b *domain.Banner) playback {
	if strings.TrimSpace(b.EmbedCode) != "" {
		return playback{Kind: PlaybackEmbed, EmbedCode: b.EmbedCode}
	}
	if strings.Contains(strings.ToLower(b.StreamURL), ".m3u8") {
		return playback{Kind: PlaybackHLS, URL: b.StreamURL}
	}
	return playback{Kind: PlaybackNative, URL: b.StreamURL}
}

func watchURL(bannerID int64, email string) string {
	u := fmt.Sprintf("/api/watch/%d", bannerID)
	if email != "" {
		u += "?email=" + url.QueryEscape(email)
	}
	return u
}

// handleListBanners lists banners currently on sale
func (s *Server) handleListBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := s.repos.Banners.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.clock.Now()
	visible := access.VisibleBanners(banners, now)

	out := make([]publicBanner, 0, len(visible))
	for i := range visible {
		out = append(out, toPublicBanner(&visible[i], now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBanner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	banner, err := s.repos.Banners.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicBanner(banner, s.clock.Now()))
}

type clickResponse struct {
	BannerID      int64  `json:"banner_id"`
	Free          bool   `json:"free"`
	RequiresEmail bool   `json:"requires_email"`
	WatchURL      string `json:"watch_url,omitempty"`
	ViewCount     int64  `json:"view_count"`
}

// handleBannerClick counts a "click to watch" and tells the UI where to go next:
// free banners straight to the player, paid ones to email collection.
func (s *Server) handleBannerClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	banner, err := s.repos.Banners.GetByID(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Count the view; a failed counter does not block the viewer
	views := banner.ViewCount
	if err := s.repos.Banners.IncrementViews(ctx, banner.ID); err != nil {
		s.logger.Warn().Err(err).Int64("banner_id", banner.ID).Msg("Failed to count view")
	} else {
		views++
	}
	day := s.clock.Now().Format("2006-01-02")
	if err := s.repos.Stats.IncrementDaily(ctx, banner.ID, day); err != nil {
		s.logger.Warn().Err(err).Int64("banner_id", banner.ID).Msg("Failed to update streaming stats")
	}

	// Free banners go straight to the player
	resp := clickResponse{
		BannerID:      banner.ID,
		Free:          banner.IsFree(),
		RequiresEmail: !banner.IsFree(),
		ViewCount:     views,
	}
	if banner.IsFree() {
		resp.WatchURL = watchURL(banner.ID, "")
	}
	writeJSON(w, http.StatusOK, resp)
}

type watchResponse struct {
	Banner   publicBanner `json:"banner"`
	Playback playback     `json:"playback"`
}

type paymentRequiredResponse struct {
	Error    string          `json:"error"`
	BannerID int64           `json:"banner_id"`
	Price    decimal.Decimal `json:"price"`
	Checkout string          `json:"checkout"`
}

// handleWatch grants the stream only through the access evaluator. Any client
// hints such as free=true or purchased=true are ignored.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	banner, err := s.repos.Banners.GetByID(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Check access
	now := s.clock.Now()
	ok, err := s.evaluator.HasAccess(ctx, banner, r.URL.Query().Get("email"), now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusPaymentRequired, paymentRequiredResponse{
			Error:    domain.ErrPaymentRequired.Error(),
			BannerID: banner.ID,
			Price:    banner.Price,
			Checkout: "/api/checkout",
		})
		return
	}

	writeJSON(w, http.StatusOK, watchResponse{
		Banner:   toPublicBanner(banner, now),
		Playback: describePlayback(banner),
	})
}

type purchaseRow struct {
	domain.Purchase
	Expired  bool   `json:"expired"`
	WatchURL string `json:"watch_url"`
}

// handlePurchaseSearch lets a viewer find what they bought with an email
func (s *Server) handlePurchaseSearch(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if !domain.ValidEmail(email) {
		s.writeError(w, r, domain.NewValidationError("email", "must be a valid address"))
		return
	}

	purchases, err := s.ledger.FindByEmail(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.clock.Now()
	rows := make([]purchaseRow, 0, len(purchases))
	for i := range purchases {
		p := purchases[i]
		rows = append(rows, purchaseRow{
			Purchase: p,
			Expired:  !p.ValidAt(now),
			WatchURL: watchURL(p.BannerID, p.Email),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}
