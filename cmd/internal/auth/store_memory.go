package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*Session)}
}

// Create persists a new session.
func (s *MemoryStore) Create(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.ID) == "" || strings.TrimSpace(sess.UserID) == "" ||
		strings.TrimSpace(sess.TokenHash) == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := sess
	s.byHash[cp.TokenHash] = &cp
	return nil
}

// Resolve loads an active session by token hash.
func (s *MemoryStore) Resolve(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byHash[tokenHash]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.RevokedAt != nil {
		return Session{}, ErrSessionRevoked
	}
	if !now.Before(sess.ExpiresAt) {
		return Session{}, ErrSessionExpired
	}
	return *sess, nil
}

// Revoke marks a session revoked. Idempotent.
func (s *MemoryStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byHash[tokenHash]; ok && sess.RevokedAt == nil {
		revoked := now
		sess.RevokedAt = &revoked
	}
	return nil
}

// DeleteExpired removes sessions past their expiry.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, sess := range s.byHash {
		if !now.Before(sess.ExpiresAt) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}
