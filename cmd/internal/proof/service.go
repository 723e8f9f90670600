// Package proof implements the collection-proof token service: short-lived,
// single-use tokens a user renders as a QR code to prove "this is me, right
// now" to an ambassador at a station.
//
// A short TTL bounds the exposure window of a displayed code; single
// consumption prevents double-crediting from one physical scan event.
package proof

import (
	"context"
	"strings"
	"time"

	"circuito/cmd/identity/ids"
	"circuito/cmd/security/token"
)

const (
	// DefaultTTL is the token validity window.
	DefaultTTL = 5 * time.Minute

	defaultTokenBytes = 32

	// maxTokenLen bounds inputs before hashing (pathological payload guard).
	maxTokenLen = 4096
)

// Issued is the result of minting a proof token. Token is the plain value
// for QR rendering; it is never persisted.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service manages proof token issuance and consumption.
type Service struct {
	store      Store
	ttl        time.Duration
	tokenBytes int
}

// Option configures the Service.
type Option func(*Service) error

// WithTTL overrides the token validity window.
func WithTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// WithTokenBytes sets the entropy of generated tokens in bytes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, ttl: DefaultTTL, tokenBytes: defaultTokenBytes}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Issue mints a fresh token bound to userID, superseding any still-active
// token for the same user (at most one live token per user).
func (s *Service) Issue(ctx context.Context, userID string, now time.Time) (Issued, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return Issued{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, err
	}

	rec := Record{
		ID:        id,
		UserID:    userID,
		TokenHash: token.HashOpaqueTokenHex(plain),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Issued{}, err
	}

	return Issued{Token: plain, IssuedAt: rec.IssuedAt, ExpiresAt: rec.ExpiresAt}, nil
}

// ValidateAndConsume resolves a scanned token to its user and marks it
// consumed, exactly once. Failure modes: ErrTokenNotFound, ErrTokenExpired,
// ErrTokenConsumed, ErrTokenSuperseded.
func (s *Service) ValidateAndConsume(ctx context.Context, tokenValue string, now time.Time) (userID string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" || len(tokenValue) > maxTokenLen {
		return "", ErrTokenNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec, err := s.store.Consume(ctx, token.HashOpaqueTokenHex(tokenValue), now)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

// GC removes expired token rows. Best-effort housekeeping.
func (s *Service) GC(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.DeleteExpired(ctx, now)
}
