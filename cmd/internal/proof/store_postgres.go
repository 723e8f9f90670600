package proof

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists proof tokens in PostgreSQL.
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

const recordColumns = `id, user_id, token_hash, issued_at, expires_at, consumed_at, superseded_at`

// Create inserts the token row and supersedes any still-active token for
// the same user inside one transaction.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" || strings.TrimSpace(rec.TokenHash) == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tokens := pgIdent(s.schema, "proof_tokens")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE `+tokens+`
		   SET superseded_at = $2
		 WHERE user_id = $1
		   AND consumed_at IS NULL
		   AND superseded_at IS NULL
		   AND expires_at > $2
	`, rec.UserID, rec.IssuedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+tokens+` (
			id, user_id, token_hash, issued_at, expires_at, consumed_at, superseded_at
		) VALUES ($1, $2, $3, $4, $5, NULL, NULL)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Consume marks the token consumed with a single conditional update.
// The affected-row check is the exactly-once guarantee: two concurrent
// consumers race on the same UPDATE and only one matches the predicate.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Record, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Record{}, ErrTokenNotFound
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tokens := pgIdent(s.schema, "proof_tokens")

	var rec Record
	err := s.pool.QueryRow(ctx, `
		UPDATE `+tokens+`
		   SET consumed_at = $1
		 WHERE token_hash = $2
		   AND consumed_at IS NULL
		   AND superseded_at IS NULL
		   AND expires_at > $1
		RETURNING `+recordColumns+`
	`, now, tokenHash).Scan(
		&rec.ID, &rec.UserID, &rec.TokenHash,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.ConsumedAt, &rec.SupersededAt,
	)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}

	// Classify the failure for the error taxonomy.
	existing, selErr := s.GetByTokenHash(ctx, tokenHash)
	if selErr != nil {
		return Record{}, selErr
	}
	return Record{}, classifyInactive(existing, now)
}

// GetByTokenHash fetches a token row by hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Record{}, ErrTokenNotFound
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	tokens := pgIdent(s.schema, "proof_tokens")
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM `+tokens+` WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&rec.ID, &rec.UserID, &rec.TokenHash,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.ConsumedAt, &rec.SupersededAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// DeleteExpired garbage-collects expired rows.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tokens := pgIdent(s.schema, "proof_tokens")
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+tokens+` WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// classifyInactive explains why a conditional consume matched no rows.
// Consumed wins over expired: a consumed token should read as "already
// processed", not as a fresh expiry.
func classifyInactive(rec Record, now time.Time) error {
	switch {
	case rec.ConsumedAt != nil:
		return ErrTokenConsumed
	case rec.SupersededAt != nil:
		return ErrTokenSuperseded
	case !rec.ExpiresAt.After(now):
		return ErrTokenExpired
	default:
		// The row became consumable between UPDATE and SELECT; treat as a
		// lost race.
		return ErrTokenConsumed
	}
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
