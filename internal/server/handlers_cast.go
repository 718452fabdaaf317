package server

import (
	"net/http"

	"streamingplus/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCastDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.cast.Devices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type castRequest struct {
	BannerID int64  `json:"banner_id"`
	Email    string `json:"email"`
}

// handleCast sends a stream to a device. Casting is watching, so it goes
// through the same access check as the player.
func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req castRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	banner, err := s.repos.Banners.GetByID(ctx, req.BannerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := s.evaluator.HasAccess(ctx, banner, req.Email, s.clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, domain.ErrPaymentRequired)
		return
	}
	if banner.StreamURL == "" {
		s.writeError(w, r, domain.NewValidationError("banner_id", "has no castable stream url"))
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if err := s.cast.Cast(ctx, deviceID, banner.StreamURL); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"banner_id": banner.ID,
		"casting":   true,
	})
}
