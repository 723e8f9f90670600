package collection

import (
	"context"
	"sort"
	"strings"
	"sync"

	"circuito/cmd/identity"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in unit tests. User balances live in the identity MemoryStore so
// that the collection and reward workflows mutate one shared ledger, the
// way the SQL stores share the users table.
type MemoryStore struct {
	users *identity.MemoryStore

	mu       sync.Mutex
	byUser   map[string][]Record
	stations []Station
}

// NewMemoryStore constructs a MemoryStore over the shared user ledger.
func NewMemoryStore(users *identity.MemoryStore) *MemoryStore {
	return &MemoryStore{
		users:  users,
		byUser: make(map[string][]Record),
	}
}

// SeedStations replaces the station catalog (dev/in-memory mode).
func (s *MemoryStore) SeedStations(stations []Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations = append([]Station(nil), stations...)
}

// ApplyValidated credits the balance and records the collection.
func (s *MemoryStore) ApplyValidated(ctx context.Context, rec Record) (ApplyResult, error) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" || rec.PointsAwarded <= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, err
	}

	prev, now, prevLevel, newLevel, err := s.users.CreditPoints(ctx, rec.UserID, rec.PointsAwarded)
	if err != nil {
		if identity.IsNotFound(err) {
			return ApplyResult{}, ErrUserNotFound
		}
		return ApplyResult{}, err
	}

	s.mu.Lock()
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], rec)
	s.mu.Unlock()

	if rec.AmbassadorID != nil {
		// Counter bump is best-effort in memory mode; the postgres store
		// does it inside the credit transaction.
		_ = s.users.IncrementValidated(ctx, *rec.AmbassadorID)
	}

	return ApplyResult{
		PrevPoints: prev,
		NewPoints:  now,
		PrevLevel:  prevLevel,
		NewLevel:   newLevel,
	}, nil
}

// HistoryForUser lists a user's collections, newest first.
func (s *MemoryStore) HistoryForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
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

	recs := append([]Record(nil), s.byUser[userID]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// ListStations returns the seeded station catalog.
func (s *MemoryStore) ListStations(ctx context.Context) ([]Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]Station(nil), s.stations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
