package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "circuito").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "circuito"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Create persists a new session row.
func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.ID) == "" || strings.TrimSpace(sess.UserID) == "" ||
		strings.TrimSpace(sess.TokenHash) == "" {
		return ErrInvalidInput
	}

	sessions := pgIdent(s.schema, "sessions")
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+sessions+` (
			id, user_id, token_hash, issued_at, expires_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, NULL)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.IssuedAt, sess.ExpiresAt)
	return err
}

// Resolve loads an active session by token hash and classifies the
// inactive cases.
func (s *PostgresStore) Resolve(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return Session{}, ErrInvalidInput
	}

	sessions := pgIdent(s.schema, "sessions")
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at
		  FROM `+sessions+`
		 WHERE token_hash = $1
	`, tokenHash).Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}

	if sess.RevokedAt != nil {
		return Session{}, ErrSessionRevoked
	}
	if !now.Before(sess.ExpiresAt) {
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Revoke marks a session revoked. Idempotent.
func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if strings.TrimSpace(tokenHash) == "" {
		return nil
	}

	sessions := pgIdent(s.schema, "sessions")
	_, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, now)
	return err
}

// DeleteExpired removes sessions past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	sessions := pgIdent(s.schema, "sessions")
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+sessions+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
