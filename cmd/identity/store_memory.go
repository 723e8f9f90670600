package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"circuito/cmd/identity/ids"
	"circuito/cmd/internal/level"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in unit tests. It also exposes the conditional balance mutations the
// collection and reward memory stores build on, with the same atomicity
// contract as the SQL conditional updates.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]string // email_norm -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// CreateUser inserts a new user.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash required"}
	}
	if _, ok := ParseRole(string(in.Role)); !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[norm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := &User{
		ID:           id,
		Email:        email,
		EmailNorm:    norm,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         in.Role,
		StationID:    in.StationID,
		PartnerID:    in.PartnerID,
		Level:        1,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}
	s.byID[id] = u
	s.byEmail[norm] = id
	return *u, nil
}

// GetByID loads a user by ID.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByID", Resource: "user"}
	}
	return *u, nil
}

// GetByEmailNorm loads a user by normalized email.
func (s *MemoryStore) GetByEmailNorm(ctx context.Context, emailNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByEmailNorm", Resource: "user"}
	}
	return *s.byID[id], nil
}

// CreditPoints atomically adds delta points and recomputes the level cache.
// Mirrors the SQL "UPDATE ... SET impact_points = impact_points + $n" credit.
func (s *MemoryStore) CreditPoints(ctx context.Context, userID string, delta int) (prev, now int, prevLevel, newLevel int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, 0, err
	}
	if delta <= 0 {
		return 0, 0, 0, 0, OpError{Op: "identity.CreditPoints", Kind: ErrInvalidInput, Msg: "non-positive delta"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return 0, 0, 0, 0, NotFoundError{Op: "identity.CreditPoints", Resource: "user"}
	}

	prev = u.ImpactPoints
	prevLevel = u.Level
	u.ImpactPoints += delta

	lvl, lerr := level.For(u.ImpactPoints)
	if lerr != nil {
		return 0, 0, 0, 0, lerr
	}
	u.Level = lvl.Number
	return prev, u.ImpactPoints, prevLevel, u.Level, nil
}

// DeductPoints atomically subtracts cost iff the balance covers it.
// ok=false reports the precondition failure together with the current
// balance; the balance never goes negative.
func (s *MemoryStore) DeductPoints(ctx context.Context, userID string, cost int) (ok bool, balance int, err error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	if cost < 0 {
		return false, 0, OpError{Op: "identity.DeductPoints", Kind: ErrInvalidInput, Msg: "negative cost"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, found := s.byID[userID]
	if !found {
		return false, 0, NotFoundError{Op: "identity.DeductPoints", Resource: "user"}
	}
	if u.ImpactPoints < cost {
		return false, u.ImpactPoints, nil
	}

	u.ImpactPoints -= cost
	lvl, lerr := level.For(u.ImpactPoints)
	if lerr != nil {
		return false, 0, lerr
	}
	u.Level = lvl.Number
	return true, u.ImpactPoints, nil
}

// IncrementValidated bumps an ambassador's lifetime counter.
func (s *MemoryStore) IncrementValidated(ctx context.Context, ambassadorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[ambassadorID]
	if !ok {
		return NotFoundError{Op: "identity.IncrementValidated", Resource: "user"}
	}
	u.CollectionsValidated++
	return nil
}
