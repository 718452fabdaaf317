package server

import (
	"crypto/subtle"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"streamingplus/internal/access"
	"streamingplus/internal/domain"
	"streamingplus/internal/templates"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Admin handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Constant-time username check, always run bcrypt
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.config.Admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.adminHash, []byte(req.Password))
	if !userOK || passErr != nil {
		s.logger.Warn().Str("username", req.Username).Msg("Failed admin login")
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	token, claims, err := s.generateToken(req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	expiresAt := claims.ExpiresAt.Time
	s.setAuthCookie(w, token, int(time.Until(expiresAt).Seconds()))
	s.logger.Info().Str("username", req.Username).Str("session_id", claims.ID).Msg("Admin logged in")

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// handleAdminLogout revokes the session token until it would have expired anyway
func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	claims := getAdminClaims(r)
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	if err := s.revocations.MarkRevoked(r.Context(), sessionID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error().Err(err).Msg("Failed to revoke admin session")
		s.writeError(w, r, domain.ErrStoreUnavailable)
		return
	}

	clearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	claims := getAdminClaims(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":   claims.Subject,
		"session_id": claims.ID,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// Banner management

type adminBanner struct {
	domain.Banner
	Status access.BannerStatus `json:"status"`
}

type bannerRequest struct {
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	StreamURL      string          `json:"stream_url"`
	EmbedCode      string          `json:"embed_code"`
	StartDate      time.Time       `json:"start_date"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Active         *bool           `json:"active"`
	PixKey         string          `json:"pix_key"`
	Thumbnail      string          `json:"thumbnail"`
}

// apply copies the request onto b; Active is only touched when sent
func (req *bannerRequest) apply(b *domain.Banner) {
	b.Title = strings.TrimSpace(req.Title)
	b.Price = req.Price
	b.StreamURL = strings.TrimSpace(req.StreamURL)
	b.EmbedCode = req.EmbedCode
	b.StartDate = req.StartDate.UTC()
	b.ExpirationDate = req.ExpirationDate.UTC()
	b.PixKey = strings.TrimSpace(req.PixKey)
	b.Thumbnail = strings.TrimSpace(req.Thumbnail)
	if req.Active != nil {
		b.Active = *req.Active
	}
}

func (s *Server) handleAdminListBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := s.repos.Banners.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.clock.Now()
	out := make([]adminBanner, 0, len(banners))
	for i := range banners {
		out = append(out, adminBanner{Banner: banners[i], Status: access.Status(&banners[i], now)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBanner(w http.ResponseWriter, r *http.Request) {
	var req bannerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	banner := &domain.Banner{Active: true}
	req.apply(banner)
	if err := banner.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.repos.Banners.Create(r.Context(), banner); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info().Int64("banner_id", banner.ID).Str("title", banner.Title).Msg("Banner created")
	writeJSON(w, http.StatusCreated, adminBanner{Banner: *banner, Status: access.Status(banner, s.clock.Now())})
}

// handleUpdateBanner edits a banner. Existing purchases keep their own
// snapshot of title, stream and expiration.
func (s *Server) handleUpdateBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req bannerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	banner, err := s.repos.Banners.GetByID(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req.apply(banner)
	if err := banner.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.repos.Banners.Update(ctx, banner); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminBanner{Banner: *banner, Status: access.Status(banner, s.clock.Now())})
}

func (s *Server) handleToggleBanner(w http.ResponseWriter, r *http.Request) {
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

	banner.Active = !banner.Active
	if err := s.repos.Banners.Update(ctx, banner); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminBanner{Banner: *banner, Status: access.Status(banner, s.clock.Now())})
}

// handleDeleteBanner removes the banner only; purchases made for it stay in the ledger
func (s *Server) handleDeleteBanner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.repos.Banners.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info().Int64("banner_id", id).Msg("Banner deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBannerStats(w http.ResponseWriter, r *http.Request) {
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

	stats, err := s.repos.Stats.ListByBanner(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"banner_id":  banner.ID,
		"view_count": banner.ViewCount,
		"daily":      stats,
	})
}

// Reports

type dashboardResponse struct {
	domain.DashboardStats
	BannersByStatus map[access.BannerStatus]int `json:"banners_by_status"`
	RevenueByDay    []domain.DailyRevenue       `json:"revenue_by_day"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, err := intQuery(r, "days", 7)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	banners, err := s.repos.Banners.List(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.clock.Now()
	totals, err := s.ledger.DashboardTotals(ctx, banners, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	revenue, err := s.ledger.RevenueByDay(ctx, days, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		DashboardStats:  totals,
		BannersByStatus: access.CountByStatus(banners, now),
		RevenueByDay:    revenue,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, err := s.repos.Transactions.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// intQuery reads a positive integer query value, falling back to def when absent
func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.NewValidationError(key, "must be a positive integer")
	}
	return n, nil
}

// Customers

func (s *Server) customers(r *http.Request) ([]domain.Customer, error) {
	order, err := access.ParseCustomerOrder(r.URL.Query().Get("sort"))
	if err != nil {
		return nil, err
	}
	customers, err := s.ledger.CustomerSummary(r.Context(), order)
	if err != nil {
		return nil, err
	}
	return access.SearchCustomers(customers, r.URL.Query().Get("q")), nil
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.customers(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// handleExportCustomers streams the filtered customer list as CSV
func (s *Server) handleExportCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.customers(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Set headers for file download
	filename := fmt.Sprintf("clientes_%s.csv", s.clock.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if err := writeCustomersCSV(w, customers); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write customers CSV")
	}
}

func writeCustomersCSV(out io.Writer, customers []domain.Customer) error {
	writer := csv.NewWriter(out)

	// Header row
	header := []string{"Email", "Total Gasto (R$)", "Número de Compras", "Primeira Compra", "Última Compra"}
	if err := writer.Write(header); err != nil {
		return err
	}

	const layout = "02/01/2006 15:04"
	for _, c := range customers {
		row := []string{
			c.Email,
			c.TotalSpent.StringFixed(2),
			strconv.Itoa(c.PurchaseCount),
			c.FirstPurchase.Format(layout),
			c.LastPurchase.Format(layout),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type emailCustomerRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (s *Server) handleEmailCustomer(w http.ResponseWriter, r *http.Request) {
	var req emailCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !domain.ValidEmail(req.Email) {
		s.writeError(w, r, domain.NewValidationError("email", "must be a valid address"))
		return
	}
	email := domain.NormalizeEmail(req.Email)

	body, err := s.templates.RenderString(templates.Marketing, templates.MarketingData{
		SiteName: s.config.Site.Name,
		SiteURL:  s.config.Site.URL,
		Email:    email,
		Message:  strings.TrimSpace(req.Message),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Send synchronously, the admin sees delivery failures
	subject := "Novidades em " + s.config.Site.Name
	if err := s.notifier.SendHTML(r.Context(), email, subject, body); err != nil {
		s.logger.Error().Err(err).Str("to", email).Msg("Failed to send customer email")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to send email"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": true, "email": email})
}

// Settings

var editableSettings = []string{domain.SettingSiteName, domain.SettingDefaultPixKey}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings := make(map[string]string, len(editableSettings))
	for _, key := range editableSettings {
		value, err := s.repos.Settings.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		settings[key] = value
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Reject the whole request before writing anything
	for key := range req {
		if !isEditableSetting(key) {
			s.writeError(w, r, domain.NewValidationError(key, "is not an editable setting"))
			return
		}
	}
	for key, value := range req {
		if err := s.repos.Settings.Set(r.Context(), key, strings.TrimSpace(value)); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.handleGetSettings(w, r)
}

func isEditableSetting(key string) bool {
	for _, k := range editableSettings {
		if k == key {
			return true
		}
	}
	return false
}

// Uploads

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// handleUpload stores a banner thumbnail under a random name
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit upload size
	maxBytes := int64(s.config.Uploads.MaxSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, r, domain.NewValidationError("file", "invalid multipart payload or file too large"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, domain.NewValidationError("file", "is required"))
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		s.writeError(w, r, domain.NewValidationError("file", fmt.Sprintf("must be at most %d MB", s.config.Uploads.MaxSizeMB)))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, domain.NewValidationError("file", "could not be read"))
		return
	}

	// Detect type from content
	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		s.writeError(w, r, domain.NewValidationError("file", "must be a JPEG, PNG, GIF or WebP image"))
		return
	}

	if err := os.MkdirAll(s.config.Uploads.Dir, 0755); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to create upload directory: %w", err))
		return
	}
	// Random file name
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.config.Uploads.Dir, name), data, 0644); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to save upload: %w", err))
		return
	}

	s.logger.Info().Str("file", name).Int("bytes", len(data)).Msg("Upload stored")
	writeJSON(w, http.StatusCreated, map[string]string{"url": "/uploads/" + name})
}
