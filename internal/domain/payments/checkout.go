package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"streamingplus/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// Checkout keeps the open PIX sessions, keyed by session id
type Checkout struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	confirming map[string]bool

	gateway PaymentGateway
	logger  zerolog.Logger
	now     func() time.Time
}

// NewCheckout creates an empty session registry. Session ages are measured
// with clock; nil means the wall clock.
func NewCheckout(gateway PaymentGateway, clock Clock, logger zerolog.Logger) *Checkout {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = func() time.Time { return clock.Now().UTC() }
	}

	return &Checkout{
		sessions:   make(map[string]*Session),
		confirming: make(map[string]bool),
		gateway:    gateway,
		logger:     logger.With().Str("component", "checkout").Logger(),
		now:        now,
	}
}

// Gateway returns the gateway sessions are verified against
func (c *Checkout) Gateway() PaymentGateway {
	return c.gateway
}

// Open starts the countdown for a paid banner. A viewer who already has a
// running session for the banner gets that session back with the countdown
// reset, so repeated opens do not pile up sessions.
func (c *Checkout) Open(bannerID int64, email string, amount decimal.Decimal, pixKey string) (*Session, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	if s := c.restart(bannerID, email, amount, pixKey); s != nil {
		c.logger.Info().
			Str("session_id", s.id).
			Int64("banner_id", bannerID).
			Msg("Checkout restarted")
		return s, nil
	}

	s := NewSession(uuid.NewString(), bannerID, c.now())
	if err := s.Start(amount, email, pixKey); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	c.logger.Info().
		Str("session_id", s.id).
		Int64("banner_id", bannerID).
		Str("amount", amount.StringFixed(2)).
		Msg("Checkout opened")

	return s, nil
}

// Get returns an open session
func (c *Checkout) Get(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// PaidFunc runs once the gateway reports the payment as cleared, before the
// session is finalized. An error leaves the session Verifiable so the viewer
// can retry.
type PaidFunc func(ctx context.Context, view SessionView) error

// Confirm asks the gateway whether the payment cleared, runs onPaid and moves
// the session to Confirmed, dropping it from the registry.
func (c *Checkout) Confirm(ctx context.Context, id string, onPaid PaidFunc) (SessionView, error) {
	s, err := c.Get(id)
	if err != nil {
		return SessionView{}, err
	}

	if !c.claim(id) {
		return s.View(), domain.ErrInvalidTransition
	}
	defer c.release(id)

	switch s.State() {
	case StateAwaiting:
		return s.View(), domain.ErrPrematureConfirmation
	case StateVerifiable:
	default:
		return s.View(), domain.ErrInvalidTransition
	}

	paid, err := c.gateway.Verify(ctx, s.View())
	if err != nil {
		return s.View(), fmt.Errorf("verify payment: %w", err)
	}
	if !paid {
		return s.View(), domain.ErrPaymentRequired
	}

	if onPaid != nil {
		if err := onPaid(ctx, s.View()); err != nil {
			// Nothing left to sell, so retrying cannot succeed
			if errors.Is(err, domain.ErrOfferEnded) {
				_ = s.Cancel()
				c.remove(id)
				c.logger.Warn().
					Str("session_id", id).
					Int64("banner_id", s.bannerID).
					Msg("Checkout cancelled after payment, offer ended")
			}
			return s.View(), err
		}
	}

	if err := s.Confirm(); err != nil {
		return s.View(), err
	}
	c.remove(id)

	view := s.View()
	c.logger.Info().
		Str("session_id", id).
		Int64("banner_id", view.BannerID).
		Msg("Checkout confirmed")

	return view, nil
}

// Cancel abandons a session and drops it from the registry
func (c *Checkout) Cancel(id string) (SessionView, error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return SessionView{}, domain.ErrNotFound
	}
	if c.confirming[id] {
		c.mu.Unlock()
		return s.View(), domain.ErrInvalidTransition
	}
	if err := s.Cancel(); err != nil {
		c.mu.Unlock()
		return s.View(), err
	}
	delete(c.sessions, id)
	c.mu.Unlock()

	c.logger.Info().Str("session_id", id).Msg("Checkout cancelled")
	return s.View(), nil
}

// Reap cancels and drops sessions older than maxAge
func (c *Checkout) Reap(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, s := range c.sessions {
		if s.createdAt.Before(cutoff) && !c.confirming[id] {
			_ = s.Cancel()
			delete(c.sessions, id)
			n++
		}
	}
	return n
}

// Start reaps stale sessions every interval until ctx is done
func (c *Checkout) Start(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Reap(maxAge); n > 0 {
				c.logger.Debug().Int("reaped", n).Msg("Stale checkout sessions dropped")
			}
		}
	}
}

// Len returns the number of open sessions
func (c *Checkout) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// restart resets a running session of the same viewer for the same banner
func (c *Checkout) restart(bannerID int64, email string, amount decimal.Decimal, pixKey string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, s := range c.sessions {
		if c.confirming[id] {
			continue
		}
		if s.bannerID != bannerID || s.View().Email != email {
			continue
		}
		if err := s.Start(amount, email, pixKey); err == nil {
			return s
		}
	}
	return nil
}

func (c *Checkout) remove(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// claim marks a session as being confirmed; false if someone else got there first
func (c *Checkout) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirming[id] {
		return false
	}
	c.confirming[id] = true
	return true
}

func (c *Checkout) release(id string) {
	c.mu.Lock()
	delete(c.confirming, id)
	c.mu.Unlock()
}
