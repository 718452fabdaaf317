package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"streamingplus/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	adminContextKey contextKey = "admin"
	authCookieName             = "admin_token"
)

// Claims represents the admin session token. ID carries the session id that
// logout revokes.
type Claims struct {
	jwt.RegisteredClaims
}

// adminMiddleware protects admin routes: the token must verify, be unexpired
// and not revoked.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cookie first, then Authorization header
		tokenString := bearerOrCookie(r)
		if tokenString == "" {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}

		// Parse and validate the token
		claims, err := s.parseToken(tokenString)
		if err != nil {
			// Clear invalid cookie
			clearAuthCookie(w)
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}

		// Logged out sessions stay valid JWTs until they expire
		sessionID, err := uuid.Parse(claims.ID)
		if err != nil {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		revoked, err := s.revocations.IsRevoked(r.Context(), sessionID)
		if err != nil {
			s.logger.Error().Err(err).Msg("Revocation lookup failed")
			s.writeError(w, r, domain.ErrStoreUnavailable)
			return
		}
		if revoked {
			clearAuthCookie(w)
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}

		// Add admin claims to context
		ctx := context.WithValue(r.Context(), adminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerOrCookie(r *http.Request) string {
	if cookie, err := r.Cookie(authCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.ExpiresAt == nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// getAdminClaims extracts the admin session from request context
func getAdminClaims(r *http.Request) *Claims {
	claims, ok := r.Context().Value(adminContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// generateToken issues a fresh admin session token. Token lifetimes follow
// the wall clock, as verification does.
func (s *Server) generateToken(username string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.config.JWT.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Site.Name,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWT.Secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// setAuthCookie sets the authentication cookie
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.config.Debug,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookie removes the authentication cookie
func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
