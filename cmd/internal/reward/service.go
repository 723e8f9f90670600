// Package reward implements the redemption workflow: points are traded
// for a partner reward as a single-use code the partner scans to honor
// the claim.
package reward

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"circuito/cmd/identity/ids"
	"circuito/cmd/security/token"
)

const (
	// DefaultCodeTTL is the redemption code validity window.
	DefaultCodeTTL = 24 * time.Hour

	defaultCodeBytes = 32

	// maxCodeLen bounds inputs before hashing (pathological payload guard).
	maxCodeLen = 4096
)

// Minted is the result of a successful redemption request. Code is the
// plain value for QR rendering; it is never persisted.
type Minted struct {
	Redemption Redemption
	Code       string
	NewBalance int
}

// Service orchestrates redemption mint and consume.
type Service struct {
	log       *slog.Logger
	store     Store
	ttl       time.Duration
	codeBytes int
}

// Option configures the Service.
type Option func(*Service) error

// WithCodeTTL overrides the redemption code validity window.
func WithCodeTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// WithCodeBytes sets the entropy of generated codes in bytes.
func WithCodeBytes(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.codeBytes = n
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(log *slog.Logger, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{log: log, store: store, ttl: DefaultCodeTTL, codeBytes: defaultCodeBytes}
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

// ListActive returns the redeemable catalog.
func (s *Service) ListActive(ctx context.Context) ([]Reward, error) {
	return s.store.ListActiveRewards(ctx)
}

// RequestRedemption trades points for a reward and mints a single-use
// code. The balance decrement is conditional at write time: two
// near-simultaneous requests cannot both succeed on one reward's worth
// of points.
func (s *Service) RequestRedemption(ctx context.Context, userID, rewardID string, now time.Time) (Minted, error) {
	if err := ctx.Err(); err != nil {
		return Minted{}, err
	}
	userID = strings.TrimSpace(userID)
	rewardID = strings.TrimSpace(rewardID)
	if userID == "" || rewardID == "" {
		return Minted{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rw, err := s.store.GetReward(ctx, rewardID)
	if err != nil {
		return Minted{}, err
	}
	if !rw.Active {
		return Minted{}, ErrRewardNotFound
	}

	plain, err := token.NewOpaque(s.codeBytes)
	if err != nil {
		return Minted{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Minted{}, err
	}

	rec := Redemption{
		ID:         id,
		UserID:     userID,
		RewardID:   rw.ID,
		CodeHash:   token.HashOpaqueTokenHex(plain),
		PointsCost: rw.PointsCost,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
		Status:     StatusActive,
	}

	balance, err := s.store.MintRedemption(ctx, rec, rw.MinLevel)
	if err != nil {
		return Minted{}, err
	}

	s.log.Info("redemption.minted",
		"user_id", userID,
		"reward_id", rw.ID,
		"points_cost", rw.PointsCost,
		"expires_at", rec.ExpiresAt,
	)
	return Minted{Redemption: rec, Code: plain, NewBalance: balance}, nil
}

// Redeem consumes a scanned redemption code, exactly once. Failure modes:
// ErrCodeNotFound, ErrCodeExpired, ErrCodeUsed.
func (s *Service) Redeem(ctx context.Context, code string, now time.Time) (Redemption, error) {
	if err := ctx.Err(); err != nil {
		return Redemption{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" || len(code) > maxCodeLen {
		return Redemption{}, ErrCodeNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec, err := s.store.ConsumeRedemption(ctx, token.HashOpaqueTokenHex(code), now)
	if err != nil {
		return Redemption{}, err
	}

	s.log.Info("redemption.used",
		"user_id", rec.UserID,
		"reward_id", rec.RewardID,
	)
	return rec, nil
}

// SweepExpired flips stale active codes to expired. Best-effort
// housekeeping.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.ExpireStale(ctx, now)
}

// HistoryForUser lists a user's redemptions, newest first.
func (s *Service) HistoryForUser(ctx context.Context, userID string, limit int) ([]Redemption, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.HistoryForUser(ctx, userID, limit)
}
