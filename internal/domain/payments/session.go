package payments

import (
	"sync"
	"time"

	"streamingplus/internal/domain"

	"github.com/shopspring/decimal"
)

// State is a checkout session state
type State string

const (
	StateIdle       State = "idle"
	StateAwaiting   State = "awaiting_confirmation"
	StateVerifiable State = "verifiable"
	StateConfirmed  State = "confirmed"
	StateCancelled  State = "cancelled"
)

// CountdownSeconds is how long a viewer waits before a PIX payment can be verified
const CountdownSeconds = 60

// Session models the PIX countdown and verification gate. It holds no timer:
// whoever owns the session delivers one Tick per elapsed second and must stop
// doing so once the session ends.
type Session struct {
	mu sync.Mutex

	id        string
	bannerID  int64
	email     string
	amount    decimal.Decimal
	pixKey    string
	state     State
	remaining int
	createdAt time.Time
}

// SessionView is a read-only copy of a session
type SessionView struct {
	ID               string          `json:"id"`
	BannerID         int64           `json:"banner_id"`
	Email            string          `json:"email"`
	Amount           decimal.Decimal `json:"amount"`
	PixKey           string          `json:"pix_key,omitempty"`
	State            State           `json:"state"`
	SecondsRemaining int             `json:"seconds_remaining"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewSession creates an idle session for a banner
func NewSession(id string, bannerID int64, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		bannerID:  bannerID,
		state:     StateIdle,
		createdAt: createdAt,
	}
}

// Start moves the session to AwaitingConfirmation with a full countdown.
// Starting again while awaiting or verifiable resets the countdown.
func (s *Session) Start(amount decimal.Decimal, email, pixKey string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateAwaiting, StateVerifiable:
	default:
		return domain.ErrInvalidTransition
	}

	s.amount = amount
	s.email = email
	s.pixKey = pixKey
	s.state = StateAwaiting
	s.remaining = CountdownSeconds
	return nil
}

// Tick accounts for one elapsed second and returns the resulting state
func (s *Session) Tick() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaiting {
		return s.state
	}
	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		s.state = StateVerifiable
	}
	return s.state
}

// Confirm accepts the payment; only valid once the countdown has finished
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateVerifiable:
		s.state = StateConfirmed
		return nil
	case StateAwaiting:
		return domain.ErrPrematureConfirmation
	default:
		return domain.ErrInvalidTransition
	}
}

// Cancel abandons the session from any state but Confirmed
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConfirmed {
		return domain.ErrInvalidTransition
	}
	s.state = StateCancelled
	return nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done reports whether the session reached a terminal state
func (s *Session) Done() bool {
	st := s.State()
	return st == StateConfirmed || st == StateCancelled
}

// View returns a snapshot of the session
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionView{
		ID:               s.id,
		BannerID:         s.bannerID,
		Email:            s.email,
		Amount:           s.amount,
		PixKey:           s.pixKey,
		State:            s.state,
		SecondsRemaining: s.remaining,
		CreatedAt:        s.createdAt,
	}
}
