package reward

import (
	"context"
	"time"
)

// Status is a redemption state. active is the only non-terminal state.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Reward is a partner offer. Mutated administratively, read-only here.
type Reward struct {
	ID          string
	PartnerID   string
	Title       string
	Description string
	PointsCost  int
	MinLevel    int
	Active      bool
	CreatedAt   time.Time
}

// Redemption is a minted reward claim. CodeHash is the digest of the
// plain code; the plain value is returned once at mint time and never
// persisted.
type Redemption struct {
	ID         string
	UserID     string
	RewardID   string
	CodeHash   string
	PointsCost int
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
	Status     Status
}

// Store is the persistence boundary for rewards and redemptions.
//
// MintRedemption and ConsumeRedemption carry the exactly-once invariants:
// the balance decrement and the active->used transition are single
// conditional updates, never a read followed by a write.
type Store interface {
	// GetReward loads a reward by ID, active or not.
	GetReward(ctx context.Context, id string) (Reward, error)

	// ListActiveRewards returns the redeemable catalog.
	ListActiveRewards(ctx context.Context) ([]Reward, error)

	// MintRedemption deducts rec.PointsCost from the user's balance iff it
	// covers the cost and the user's level clears minLevel, then persists
	// rec, all as one atomic unit. Returns the balance after the deduct.
	// Fails with ErrUserNotFound, ErrLevelTooLow, or
	// InsufficientPointsError.
	MintRedemption(ctx context.Context, rec Redemption, minLevel int) (balance int, err error)

	// ConsumeRedemption transitions the redemption with codeHash from
	// active to used, exactly once. Fails with ErrCodeNotFound,
	// ErrCodeExpired (flipping a stale active row to expired as a side
	// effect), or ErrCodeUsed.
	ConsumeRedemption(ctx context.Context, codeHash string, now time.Time) (Redemption, error)

	// ExpireStale flips active redemptions past their expiry to expired.
	// An optimization for reporting; consumption re-checks expiry anyway.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// HistoryForUser lists a user's redemptions, newest first.
	HistoryForUser(ctx context.Context, userID string, limit int) ([]Redemption, error)
}
