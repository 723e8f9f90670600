package auth

import (
	"context"
	"time"
)

// Session is one issued bearer token. TokenHash is the digest of the
// plain token; the plain value is returned once at login and never
// persisted.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session is usable at now.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Store is the persistence boundary for sessions.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s Session) error

	// Resolve loads the session with tokenHash if it is active at now.
	// Fails with ErrSessionNotFound, ErrSessionExpired, or
	// ErrSessionRevoked.
	Resolve(ctx context.Context, tokenHash string, now time.Time) (Session, error)

	// Revoke marks the session with tokenHash revoked. Revoking an
	// already-revoked or unknown session is not an error; logout is
	// idempotent.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// DeleteExpired removes sessions past their expiry. Housekeeping.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
