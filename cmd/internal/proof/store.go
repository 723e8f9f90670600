package proof

import (
	"context"
	"time"
)

// Record mirrors a proof_tokens row. Only the token hash is stored; the
// plain value lives inside the user's QR code and nowhere else.
type Record struct {
	ID        string
	UserID    string
	TokenHash string

	IssuedAt  time.Time
	ExpiresAt time.Time

	ConsumedAt   *time.Time
	SupersededAt *time.Time
}

// Active reports whether the record can still be consumed at now.
func (r Record) Active(now time.Time) bool {
	return r.ConsumedAt == nil && r.SupersededAt == nil && r.ExpiresAt.After(now)
}

// Store is the persistence boundary for proof tokens.
//
// Implementations must make Consume exactly-once: two concurrent consume
// calls for the same hash must not both succeed.
type Store interface {
	// Create inserts a new token row and supersedes any still-active token
	// for the same user in the same atomic unit.
	Create(ctx context.Context, rec Record) error

	// Consume marks the token consumed iff it is active, returning the
	// record. Failure classification: ErrTokenNotFound, ErrTokenExpired,
	// ErrTokenConsumed, ErrTokenSuperseded.
	Consume(ctx context.Context, tokenHash string, now time.Time) (Record, error)

	// GetByTokenHash fetches a token row without consuming it.
	GetByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// DeleteExpired garbage-collects rows whose expiry is before cutoff.
	// Lazy optimization only; consumption re-checks expiry regardless.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
