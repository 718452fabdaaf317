package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"streamingplus/internal/domain"

	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: "internal error"}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body = errorResponse{Error: verr.Error(), Field: verr.Field}
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidAmount):
		status = http.StatusBadRequest
		body.Error = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		body.Error = "not found"
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Error = "unauthorized"
	case errors.Is(err, domain.ErrPaymentRequired):
		status = http.StatusPaymentRequired
		body.Error = domain.ErrPaymentRequired.Error()
	case errors.Is(err, domain.ErrPrematureConfirmation), errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
		body.Error = err.Error()
	case errors.Is(err, domain.ErrOfferEnded):
		status = http.StatusGone
		body.Error = err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		body.Error = "store unavailable, try again later"
	}

	if status >= 500 {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// idParam parses a positive integer URL parameter
func idParam(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(key, "must be a positive integer")
	}
	return id, nil
}
