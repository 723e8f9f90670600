package proof

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in unit tests. Consume holds the store lock for the whole
// check-and-mark, giving the same exactly-once guarantee as the SQL
// conditional update.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
	byUser map[string][]*Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Record),
		byUser: make(map[string][]*Record),
	}
}

// Create inserts the token and supersedes the user's prior active tokens.
func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" || strings.TrimSpace(rec.TokenHash) == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prior := range s.byUser[rec.UserID] {
		if prior.Active(rec.IssuedAt) {
			at := rec.IssuedAt
			prior.SupersededAt = &at
		}
	}

	stored := rec
	s.byHash[rec.TokenHash] = &stored
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], &stored)
	return nil
}

// Consume marks the token consumed exactly once.
func (s *MemoryStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	if rec.ConsumedAt != nil {
		return Record{}, ErrTokenConsumed
	}
	if rec.SupersededAt != nil {
		return Record{}, ErrTokenSuperseded
	}
	if !rec.ExpiresAt.After(now) {
		return Record{}, ErrTokenExpired
	}

	at := now
	rec.ConsumedAt = &at
	return *rec, nil
}

// GetByTokenHash fetches a token by hash.
func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return *rec, nil
}

// DeleteExpired drops expired rows.
func (s *MemoryStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped int64
	for hash, rec := range s.byHash {
		if !rec.ExpiresAt.After(cutoff) {
			delete(s.byHash, hash)
			dropped++
		}
	}
	for user, recs := range s.byUser {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.ExpiresAt.After(cutoff) {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(s.byUser, user)
			continue
		}
		s.byUser[user] = kept
	}
	return dropped, nil
}
