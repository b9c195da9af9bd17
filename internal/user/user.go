// Package user manages accounts: signup, credential checks and the running
// trust score / savings totals mutated by contribution settlements.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"padisave.org/internal/auth"
	"padisave.org/internal/ids"
	"padisave.org/internal/trust"
)

// DefaultTrustScore is assigned at signup, matching the original product.
const DefaultTrustScore = 450

var (
	ErrNotFound           = errors.New("user: not found")
	ErrDuplicateEmail     = errors.New("user: email already registered")
	ErrInvalidInput       = errors.New("user: invalid input")
	ErrInvalidCredentials = errors.New("user: invalid credentials")
)

// User is an account holder. TotalSaved accumulates every contribution the
// user has paid into any circle, in minor currency units.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	TrustScore   int       `json:"trust_score"`
	TotalSaved   int64     `json:"total_saved"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the persistence boundary for accounts.
type Store interface {
	// CreateUser persists a new account; ErrDuplicateEmail when the email
	// is taken.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// UpdateUserStats rewrites the mutable account counters.
	UpdateUserStats(ctx context.Context, id string, trustScore int, totalSaved int64) error
}

// Service implements account operations over a Store.
type Service struct {
	store  Store
	engine trust.Engine
	now    func() time.Time
	newID  func() string
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides ID generation (useful for tests).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs the account service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: trust.NewEngine(),
		now:    time.Now,
		newID:  ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a new account with the default trust score and a bcrypt
// password hash.
func (s *Service) Signup(ctx context.Context, fullName, email, password string) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeEmail(email)
	if fullName == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           s.newID(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		TrustScore:   DefaultTrustScore,
		TotalSaved:   0,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and returns the account. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.GetUser(ctx, id)
}

// SettleContribution applies one settlement outcome to the user's trust
// score and adds the paid amount to their savings total. Implements
// circle.AccountLedger; the circle service guarantees exactly-once
// invocation per settled contribution.
func (s *Service) SettleContribution(ctx context.Context, userID string, outcome trust.Outcome, amountSaved int64) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	score := s.engine.Apply(u.TrustScore, outcome)
	return s.store.UpdateUserStats(ctx, userID, score, u.TotalSaved+amountSaved)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
