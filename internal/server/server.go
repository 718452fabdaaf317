// Package server provides HTTP server setup and handlers
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"streamingplus/internal/access"
	"streamingplus/internal/cache"
	"streamingplus/internal/config"
	"streamingplus/internal/domain/cast"
	"streamingplus/internal/domain/notifications"
	"streamingplus/internal/domain/payments"
	"streamingplus/internal/logging"
	"streamingplus/internal/repository"
	"streamingplus/internal/templates"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the handlers work with
type Deps struct {
	Repos             *repository.Repositories
	Ledger            *access.Ledger
	Evaluator         *access.Evaluator
	Checkout          *payments.Checkout
	Notifier          notifications.Notifier
	Templates         *templates.Manager
	Cast              cast.Target
	Revocations       cache.SessionRevocationStore
	Clock             access.Clock
	AdminPasswordHash []byte
	Logger            zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	repos       *repository.Repositories
	ledger      *access.Ledger
	evaluator   *access.Evaluator
	checkout    *payments.Checkout
	notifier    notifications.Notifier
	templates   *templates.Manager
	cast        cast.Target
	revocations cache.SessionRevocationStore
	clock       access.Clock
	adminHash   []byte
	logger      zerolog.Logger

	upgrader websocket.Upgrader
	tickRate time.Duration
	// drivers holds the session ids whose countdown a socket is ticking
	drivers sync.Map

	// background tracks fire-and-forget work such as receipt emails
	background sync.WaitGroup

	router *chi.Mux
	http   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = access.SystemClock{}
	}

	s := &Server{
		config:      cfg,
		repos:       deps.Repos,
		ledger:      deps.Ledger,
		evaluator:   deps.Evaluator,
		checkout:    deps.Checkout,
		notifier:    deps.Notifier,
		templates:   deps.Templates,
		cast:        deps.Cast,
		revocations: deps.Revocations,
		clock:       clock,
		adminHash:   deps.AdminPasswordHash,
		logger:      deps.Logger.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		tickRate: time.Second,
		router:   chi.NewRouter(),
	}
	if cfg.Debug {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Run starts the server and handles graceful shutdown
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ttl := time.Duration(s.config.Checkout.SessionTTLMinutes) * time.Minute
	go s.checkout.Start(ctx, time.Minute, ttl)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info().
			Str("addr", s.config.Address()).
			Bool("debug", s.config.Debug).
			Msg("Server starting")
		serverErrors <- s.http.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Warn().Str("signal", sig.String()).Msg("Shutting down")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Graceful shutdown failed")
			if err := s.http.Close(); err != nil {
				return fmt.Errorf("failed to close server: %w", err)
			}
		}

		s.background.Wait()
		s.logger.Info().Msg("Server shutdown complete")
	}

	return nil
}

// setupMiddleware configures global middleware. Compression and the request
// timeout are applied per route group so websocket upgrades are left alone.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityHeaders)
}

// securityHeaders adds security-related headers to all responses
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}

// GetRouter returns the chi router (useful for testing)
func (s *Server) GetRouter() *chi.Mux {
	return s.router
}

// goBackground runs fn outside the request, detached from its context
func (s *Server) goBackground(name string, fn func(ctx context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("task", name).Msg("Background task failed")
		}
	}()
}
