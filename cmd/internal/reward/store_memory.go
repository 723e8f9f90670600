package reward

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"circuito/cmd/identity"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in unit tests. User balances live in the identity MemoryStore so
// that the collection and reward workflows mutate one shared ledger, the
// way the SQL stores share the users table.
type MemoryStore struct {
	users *identity.MemoryStore

	mu      sync.Mutex
	rewards map[string]Reward
	byCode  map[string]*Redemption
	byUser  map[string][]*Redemption
}

// NewMemoryStore constructs a MemoryStore over the shared user ledger.
func NewMemoryStore(users *identity.MemoryStore) *MemoryStore {
	return &MemoryStore{
		users:   users,
		rewards: make(map[string]Reward),
		byCode:  make(map[string]*Redemption),
		byUser:  make(map[string][]*Redemption),
	}
}

// SeedRewards replaces the reward catalog (dev/in-memory mode).
func (s *MemoryStore) SeedRewards(rewards []Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards = make(map[string]Reward, len(rewards))
	for _, rw := range rewards {
		s.rewards[rw.ID] = rw
	}
}

// GetReward loads a reward by ID.
func (s *MemoryStore) GetReward(ctx context.Context, id string) (Reward, error) {
	if strings.TrimSpace(id) == "" {
		return Reward{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Reward{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rw, ok := s.rewards[id]
	if !ok {
		return Reward{}, ErrRewardNotFound
	}
	return rw, nil
}

// ListActiveRewards returns the redeemable catalog ordered by cost.
func (s *MemoryStore) ListActiveRewards(ctx context.Context) ([]Reward, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Reward
	for _, rw := range s.rewards {
		if rw.Active {
			out = append(out, rw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsCost != out[j].PointsCost {
			return out[i].PointsCost < out[j].PointsCost
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// MintRedemption deducts the cost through the shared ledger's conditional
// decrement and records the redemption.
func (s *MemoryStore) MintRedemption(ctx context.Context, rec Redemption, minLevel int) (int, error) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" ||
		strings.TrimSpace(rec.CodeHash) == "" || rec.PointsCost < 0 {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	if u.Level < minLevel {
		return 0, ErrLevelTooLow
	}

	ok, balance, err := s.users.DeductPoints(ctx, rec.UserID, rec.PointsCost)
	if err != nil {
		if identity.IsNotFound(err) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	if !ok {
		return 0, InsufficientPointsError{Required: rec.PointsCost, Available: balance}
	}

	s.mu.Lock()
	cp := rec
	s.byCode[cp.CodeHash] = &cp
	s.byUser[cp.UserID] = append(s.byUser[cp.UserID], &cp)
	s.mu.Unlock()

	return balance, nil
}

// ConsumeRedemption transitions the code active->used under the store
// lock, mirroring the SQL conditional UPDATE.
func (s *MemoryStore) ConsumeRedemption(ctx context.Context, codeHash string, now time.Time) (Redemption, error) {
	if strings.TrimSpace(codeHash) == "" {
		return Redemption{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Redemption{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCode[codeHash]
	if !ok {
		return Redemption{}, ErrCodeNotFound
	}

	switch rec.Status {
	case StatusUsed:
		return Redemption{}, ErrCodeUsed
	case StatusExpired:
		return Redemption{}, ErrCodeExpired
	}
	if !now.Before(rec.ExpiresAt) {
		rec.Status = StatusExpired
		return Redemption{}, ErrCodeExpired
	}

	used := now
	rec.Status = StatusUsed
	rec.UsedAt = &used
	return *rec, nil
}

// ExpireStale flips active redemptions past their expiry to expired.
func (s *MemoryStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.byCode {
		if rec.Status == StatusActive && !now.Before(rec.ExpiresAt) {
			rec.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

// HistoryForUser lists a user's redemptions, newest first.
func (s *MemoryStore) HistoryForUser(ctx context.Context, userID string, limit int) ([]Redemption, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]Redemption, 0, len(s.byUser[userID]))
	for _, rec := range s.byUser[userID] {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
