// Package auth issues and validates opaque bearer session tokens. Tokens
// are random values stored hashed; possession of the plain value is the
// credential.
package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"circuito/cmd/identity"
	"circuito/cmd/identity/ids"
	"circuito/cmd/security/password"
	"circuito/cmd/security/token"
)

const (
	// DefaultSessionTTL is the session validity window.
	DefaultSessionTTL = 7 * 24 * time.Hour

	defaultTokenBytes = 32

	// maxTokenLen bounds inputs before hashing (pathological payload guard).
	maxTokenLen = 4096
)

// Issued is the result of a login. Token is the plain bearer value; it
// is never persisted.
type Issued struct {
	Token     string
	User      identity.User
	ExpiresAt time.Time
}

// Service manages login and session lifecycle.
type Service struct {
	log        *slog.Logger
	users      identity.Store
	store      Store
	pw         password.Config
	ttl        time.Duration
	tokenBytes int

	// dummyHash keeps the login path near constant-time for unknown
	// emails: verify always runs against something.
	dummyHash string
}

// Option configures the Service.
type Option func(*Service) error

// WithSessionTTL overrides the session validity window.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(log *slog.Logger, users identity.Store, store Store, pw password.Config, opts ...Option) (*Service, error) {
	if users == nil || store == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}

	dummy, err := pw.Hash("circuito-dummy-password")
	if err != nil {
		return nil, err
	}

	s := &Service{
		log:        log,
		users:      users,
		store:      store,
		pw:         pw,
		ttl:        DefaultSessionTTL,
		tokenBytes: defaultTokenBytes,
		dummyHash:  dummy,
	}
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

// Login checks credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, pw string, now time.Time) (Issued, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" || pw == "" {
		return Issued{}, ErrInvalidCredentials
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u, err := s.users.GetByEmailNorm(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if identity.IsNotFound(err) {
			// Burn the same work as a real verify so timing does not
			// reveal which emails exist.
			_, _ = s.pw.Verify(s.dummyHash, pw)
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	ok, err := s.pw.Verify(u.PasswordHash, pw)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredentials
	}

	return s.issue(ctx, u, now)
}

// IssueSession mints a session for an already-authenticated user
// (e.g. right after registration).
func (s *Service) IssueSession(ctx context.Context, userID string, now time.Time) (Issued, error) {
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

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Issued{}, err
	}
	return s.issue(ctx, u, now)
}

func (s *Service) issue(ctx context.Context, u identity.User, now time.Time) (Issued, error) {
	plain, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return Issued{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, err
	}

	sess := Session{
		ID:        id,
		UserID:    u.ID,
		TokenHash: token.HashOpaqueTokenHex(plain),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return Issued{}, err
	}

	s.log.Info("auth.session.issued", "user_id", u.ID, "expires_at", sess.ExpiresAt)
	return Issued{Token: plain, User: u, ExpiresAt: sess.ExpiresAt}, nil
}

// UserIDForToken resolves a bearer token to its user. Satisfies the
// notification gateway's authenticator contract.
func (s *Service) UserIDForToken(ctx context.Context, tok string) (string, error) {
	u, err := s.UserForToken(ctx, tok, time.Time{})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// UserForToken resolves a bearer token to the full user record.
func (s *Service) UserForToken(ctx context.Context, tok string, now time.Time) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return identity.User{}, ErrSessionNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sess, err := s.store.Resolve(ctx, token.HashOpaqueTokenHex(tok), now)
	if err != nil {
		return identity.User{}, err
	}
	return s.users.GetByID(ctx, sess.UserID)
}

// Logout revokes the session behind the token. Idempotent.
func (s *Service) Logout(ctx context.Context, tok string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.Revoke(ctx, token.HashOpaqueTokenHex(tok), now)
}

// GC removes expired session rows. Best-effort housekeeping.
func (s *Service) GC(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.DeleteExpired(ctx, now)
}
