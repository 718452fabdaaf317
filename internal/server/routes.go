package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Handle("/uploads/*", s.uploadsHandler())
	})

	r.Route("/api", func(r chi.Router) {
		// Checkout countdown stream; long-lived, so outside the timeout group
		r.Get("/checkout/{sessionID}/ws", s.handleCheckoutSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(middleware.Timeout(30 * time.Second))

			// Storefront
			r.Get("/banners", s.handleListBanners)
			r.Get("/banners/{id}", s.handleGetBanner)
			r.Post("/banners/{id}/click", s.handleBannerClick)
			r.Get("/watch/{id}", s.handleWatch)
			r.Get("/purchases", s.handlePurchaseSearch)

			// PIX checkout
			r.Post("/checkout", s.handleOpenCheckout)
			r.Get("/checkout/{sessionID}", s.handleCheckoutStatus)
			r.Post("/checkout/{sessionID}/confirm", s.handleConfirmCheckout)
			r.Post("/checkout/{sessionID}/cancel", s.handleCancelCheckout)
			r.Get("/checkout/{sessionID}/qr.png", s.handleCheckoutQR)

			// Casting
			r.Get("/cast/devices", s.handleCastDevices)
			r.Post("/cast/{deviceID}", s.handleCast)

			// Admin
			r.Post("/admin/login", s.handleAdminLogin)
			r.Group(func(r chi.Router) {
				r.Use(s.adminMiddleware)

				r.Post("/admin/logout", s.handleAdminLogout)
				r.Get("/admin/session", s.handleAdminSession)

				r.Get("/admin/banners", s.handleAdminListBanners)
				r.Post("/admin/banners", s.handleCreateBanner)
				r.Put("/admin/banners/{id}", s.handleUpdateBanner)
				r.Post("/admin/banners/{id}/toggle", s.handleToggleBanner)
				r.Delete("/admin/banners/{id}", s.handleDeleteBanner)
				r.Get("/admin/banners/{id}/stats", s.handleBannerStats)

				r.Get("/admin/dashboard", s.handleDashboard)
				r.Get("/admin/transactions", s.handleListTransactions)

				r.Get("/admin/customers", s.handleCustomers)
				r.Get("/admin/customers/export", s.handleExportCustomers)
				r.Post("/admin/customers/email", s.handleEmailCustomer)

				r.Get("/admin/settings", s.handleGetSettings)
				r.Put("/admin/settings", s.handleUpdateSettings)

				r.Post("/admin/uploads", s.handleUpload)
			})
		})
	})
}

// uploadsHandler serves uploaded thumbnails with caching
func (s *Server) uploadsHandler() http.Handler {
	uploadDir := filepath.Clean(s.config.Uploads.Dir)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlPath := strings.TrimPrefix(r.URL.Path, "/uploads/")

		cleanPath := filepath.Clean(urlPath)
		if strings.Contains(cleanPath, "..") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		fullPath := filepath.Join(uploadDir, cleanPath)

		absDir, _ := filepath.Abs(uploadDir)
		absFullPath, _ := filepath.Abs(fullPath)
		if !strings.HasPrefix(absFullPath, absDir+string(filepath.Separator)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(fullPath)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		// Upload names are random, so content never changes under a URL
		if !s.config.Debug {
			w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		http.ServeFile(w, r, fullPath)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
