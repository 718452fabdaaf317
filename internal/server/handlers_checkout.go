package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"streamingplus/internal/access"
	"streamingplus/internal/domain"
	"streamingplus/internal/domain/payments"
	"streamingplus/internal/templates"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type openCheckoutRequest struct {
	BannerID int64  `json:"banner_id"`
	Email    string `json:"email"`
}

type checkoutResponse struct {
	HasAccess  bool                  `json:"has_access"`
	Session    *payments.SessionView `json:"session,omitempty"`
	PixPayload string                `json:"pix_payload,omitempty"`
	QRCodeURL  string                `json:"qr_code_url,omitempty"`
	SocketURL  string                `json:"socket_url,omitempty"`
	WatchURL   string                `json:"watch_url,omitempty"`
}

func (s *Server) checkoutResponse(view payments.SessionView) checkoutResponse {
	return checkoutResponse{
		Session:    &view,
		PixPayload: s.checkout.Gateway().PaymentPayload(view),
		QRCodeURL:  fmt.Sprintf("/api/checkout/%s/qr.png", view.ID),
		SocketURL:  fmt.Sprintf("/api/checkout/%s/ws", view.ID),
	}
}

// handleOpenCheckout starts the PIX countdown for a paid banner. A viewer who
// already holds valid access is sent to the player instead of paying twice.
func (s *Server) handleOpenCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !domain.ValidEmail(req.Email) {
		s.writeError(w, r, domain.NewValidationError("email", "must be a valid address"))
		return
	}
	email := domain.NormalizeEmail(req.Email)

	// Load banner
	banner, err := s.repos.Banners.GetByID(ctx, req.BannerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Free banners never go through checkout
	now := s.clock.Now()
	if banner.IsFree() {
		writeJSON(w, http.StatusOK, checkoutResponse{HasAccess: true, WatchURL: watchURL(banner.ID, "")})
		return
	}
	if !access.IsVisible(banner, now) {
		s.writeError(w, r, domain.NewValidationError("banner_id", "is not on sale"))
		return
	}

	// Don't charge twice
	has, err := s.evaluator.HasAccess(ctx, banner, email, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if has {
		writeJSON(w, http.StatusOK, checkoutResponse{HasAccess: true, WatchURL: watchURL(banner.ID, email)})
		return
	}

	// The countdown must be able to finish while the banner is still on sale
	if banner.ExpirationDate.Sub(now) < payments.CountdownSeconds*time.Second {
		s.writeError(w, r, domain.ErrOfferEnded)
		return
	}

	session, err := s.checkout.Open(banner.ID, email, banner.Price, s.pixKeyFor(ctx, banner))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.checkoutResponse(session.View()))
}

// pixKeyFor picks the banner's own key, then the admin setting, then the configured default
func (s *Server) pixKeyFor(ctx context.Context, banner *domain.Banner) string {
	if banner.PixKey != "" {
		return banner.PixKey
	}
	key, err := s.repos.Settings.Get(ctx, domain.SettingDefaultPixKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read default PIX key")
	}
	if key != "" {
		return key
	}
	return s.config.Site.DefaultPixKey
}

func (s *Server) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.checkout.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.checkoutResponse(session.View()))
}

type confirmResponse struct {
	Session    payments.SessionView `json:"session"`
	PurchaseID int64                `json:"purchase_id"`
	WatchURL   string               `json:"watch_url"`
}

// handleConfirmCheckout records the purchase once the gateway accepts the
// payment. The receipt email goes out in the background. If the banner was
// deleted or expired while the viewer was paying, the session is cancelled
// and the viewer gets 410.
func (s *Server) handleConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var purchase domain.Purchase

	view, err := s.checkout.Confirm(r.Context(), chi.URLParam(r, "sessionID"), func(ctx context.Context, v payments.SessionView) error {
		banner, err := s.repos.Banners.GetByID(ctx, v.BannerID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrOfferEnded
		}
		if err != nil {
			return err
		}

		// Access would already be expired
		now := s.clock.Now()
		if !banner.ExpirationDate.After(now) {
			return domain.ErrOfferEnded
		}

		purchase = domain.Purchase{
			Email:          v.Email,
			BannerID:       banner.ID,
			Price:          v.Amount,
			PurchaseDate:   now,
			ExpirationDate: banner.ExpirationDate,
			BannerTitle:    banner.Title,
			StreamURL:      banner.StreamURL,
		}
		id, err := s.ledger.Record(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		return nil
	})
	if errors.Is(err, domain.ErrOfferEnded) {
		s.recordTransaction(r.Context(), view, domain.TransactionCancelled, 0)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordTransaction(r.Context(), view, domain.TransactionConfirmed, purchase.ID)
	s.sendReceipt(purchase)

	writeJSON(w, http.StatusOK, confirmResponse{
		Session:    view,
		PurchaseID: purchase.ID,
		WatchURL:   watchURL(view.BannerID, view.Email),
	})
}

func (s *Server) handleCancelCheckout(w http.ResponseWriter, r *http.Request) {
	view, err := s.checkout.Cancel(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordTransaction(r.Context(), view, domain.TransactionCancelled, 0)
	writeJSON(w, http.StatusOK, view)
}

// recordTransaction keeps an audit row per finished checkout. It does not
// affect access, so failures are only logged.
func (s *Server) recordTransaction(ctx context.Context, view payments.SessionView, status string, purchaseID int64) {
	tx := &domain.PaymentTransaction{
		ID:          view.ID,
		BannerID:    view.BannerID,
		Email:       view.Email,
		Amount:      view.Amount,
		PixKey:      view.PixKey,
		Status:      status,
		PurchaseID:  purchaseID,
		CreatedAt:   view.CreatedAt,
		CompletedAt: s.clock.Now(),
	}
	if err := s.repos.Transactions.Create(ctx, tx); err != nil {
		s.logger.Error().Err(err).Str("session_id", view.ID).Msg("Failed to record payment transaction")
	}
}

func (s *Server) sendReceipt(p domain.Purchase) {
	s.goBackground("purchase receipt", func(ctx context.Context) error {
		body, err := s.templates.RenderString(templates.PurchaseReceipt, templates.ReceiptData{
			SiteName:       s.config.Site.Name,
			Email:          p.Email,
			BannerTitle:    p.BannerTitle,
			Price:          p.Price,
			PurchaseDate:   p.PurchaseDate,
			ExpirationDate: p.ExpirationDate,
			WatchURL:       s.config.Site.URL + watchURL(p.BannerID, p.Email),
		})
		if err != nil {
			return err
		}
		return s.notifier.SendHTML(ctx, p.Email, "Seu acesso a "+p.BannerTitle, body)
	})
}

func (s *Server) handleCheckoutQR(w http.ResponseWriter, r *http.Request) {
	session, err := s.checkout.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	png, err := payments.QRCodePNG(s.checkout.Gateway(), session.View())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// handleCheckoutSocket drives the countdown: one tick per second for as long
// as the socket is open and the session is running. A second socket on the
// same session only observes.
func (s *Server) handleCheckoutSocket(w http.ResponseWriter, r *http.Request) {
	session, err := s.checkout.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// First socket on a session drives it, the rest only watch
	id := session.View().ID
	_, observing := s.drivers.LoadOrStore(id, struct{}{})
	if !observing {
		defer s.drivers.Delete(id)
	}

	closed := make(chan struct{})
	go readCheckoutSocket(conn, closed)

	s.pumpCheckoutSocket(conn, session, !observing, closed)
}

func (s *Server) pumpCheckoutSocket(conn *websocket.Conn, session *payments.Session, drive bool, closed <-chan struct{}) {
	ticker := time.NewTicker(s.tickRate)
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	send := func(view payments.SessionView) bool {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(view); err != nil {
			s.logger.Debug().Err(err).Msg("WebSocket write failed")
			return false
		}
		return true
	}

	// Initial state
	if !send(session.View()) {
		return
	}

	for {
		select {
		case <-closed:
			return

		case <-ticker.C:
			if drive {
				session.Tick()
			}
			view := session.View()
			if !send(view) {
				return
			}
			if view.State == payments.StateConfirmed || view.State == payments.StateCancelled {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.State)))
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readCheckoutSocket drains client frames so pongs and close frames are
// processed, and signals when the client goes away.
func readCheckoutSocket(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
