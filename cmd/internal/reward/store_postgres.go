package reward

import (
	"context"
	"errors"
	"strings"
	"time"

	"circuito/cmd/internal/level"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists rewards and redemptions in PostgreSQL.
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

const rewardColumns = `
	id, partner_id, title, description,
	points_cost, min_level, active, created_at`

const redemptionColumns = `
	id, user_id, reward_id, code_hash, points_cost,
	issued_at, expires_at, used_at, status`

// GetReward loads a reward by ID.
func (s *PostgresStore) GetReward(ctx context.Context, id string) (Reward, error) {
	if strings.TrimSpace(id) == "" {
		return Reward{}, ErrInvalidInput
	}

	rewards := pgIdent(s.schema, "rewards")
	var rw Reward
	err := s.pool.QueryRow(ctx,
		`SELECT `+rewardColumns+` FROM `+rewards+` WHERE id = $1`, id,
	).Scan(
		&rw.ID, &rw.PartnerID, &rw.Title, &rw.Description,
		&rw.PointsCost, &rw.MinLevel, &rw.Active, &rw.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reward{}, ErrRewardNotFound
	}
	if err != nil {
		return Reward{}, err
	}
	return rw, nil
}

// ListActiveRewards returns the redeemable catalog ordered by cost.
func (s *PostgresStore) ListActiveRewards(ctx context.Context) ([]Reward, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rewards := pgIdent(s.schema, "rewards")
	rows, err := s.pool.Query(ctx,
		`SELECT `+rewardColumns+` FROM `+rewards+
			` WHERE active ORDER BY points_cost, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reward
	for rows.Next() {
		var rw Reward
		if err := rows.Scan(
			&rw.ID, &rw.PartnerID, &rw.Title, &rw.Description,
			&rw.PointsCost, &rw.MinLevel, &rw.Active, &rw.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// MintRedemption deducts the cost and persists the redemption in one
// transaction. The decrement is a conditional UPDATE: the balance cannot
// go negative however many requests race.
func (s *PostgresStore) MintRedemption(ctx context.Context, rec Redemption, minLevel int) (int, error) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" ||
		strings.TrimSpace(rec.CodeHash) == "" || rec.PointsCost < 0 {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	users := pgIdent(s.schema, "users")
	redemptions := pgIdent(s.schema, "redemptions")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var newPoints, prevLevel int
	err = tx.QueryRow(ctx, `
		UPDATE `+users+`
		   SET impact_points = impact_points - $2
		 WHERE id = $1
		   AND impact_points >= $2
		   AND level >= $3
		RETURNING impact_points, level
	`, rec.UserID, rec.PointsCost, minLevel).Scan(&newPoints, &prevLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.classifyMintFailure(ctx, tx, rec.UserID, rec.PointsCost, minLevel)
	}
	if err != nil {
		return 0, err
	}

	newLevel, lerr := level.For(newPoints)
	if lerr != nil {
		return 0, lerr
	}
	if newLevel.Number != prevLevel {
		if _, err := tx.Exec(ctx,
			`UPDATE `+users+` SET level = $2 WHERE id = $1`,
			rec.UserID, newLevel.Number,
		); err != nil {
			return 0, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+redemptions+` (
			id, user_id, reward_id, code_hash, points_cost,
			issued_at, expires_at, used_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)
	`, rec.ID, rec.UserID, rec.RewardID, rec.CodeHash, rec.PointsCost,
		rec.IssuedAt, rec.ExpiresAt, string(rec.Status))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newPoints, nil
}

// classifyMintFailure explains why the conditional decrement matched no
// row: missing user, level gate, or short balance.
func (s *PostgresStore) classifyMintFailure(ctx context.Context, tx pgx.Tx, userID string, cost, minLevel int) error {
	users := pgIdent(s.schema, "users")

	var points, lvl int
	err := tx.QueryRow(ctx,
		`SELECT impact_points, level FROM `+users+` WHERE id = $1`, userID,
	).Scan(&points, &lvl)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if lvl < minLevel {
		return ErrLevelTooLow
	}
	return InsufficientPointsError{Required: cost, Available: points}
}

// ConsumeRedemption performs the active->used transition as a single
// conditional UPDATE. On no rows the fallback lookup classifies the
// failure, flipping a stale active row to expired on the way.
func (s *PostgresStore) ConsumeRedemption(ctx context.Context, codeHash string, now time.Time) (Redemption, error) {
	if strings.TrimSpace(codeHash) == "" {
		return Redemption{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Redemption{}, err
	}

	redemptions := pgIdent(s.schema, "redemptions")

	var rec Redemption
	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE `+redemptions+`
		   SET status = 'used', used_at = $2
		 WHERE code_hash = $1
		   AND status = 'active'
		   AND expires_at > $2
		RETURNING `+redemptionColumns+`
	`, codeHash, now).Scan(
		&rec.ID, &rec.UserID, &rec.RewardID, &rec.CodeHash, &rec.PointsCost,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.UsedAt, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Redemption{}, s.classifyConsumeFailure(ctx, codeHash, now)
	}
	if err != nil {
		return Redemption{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// classifyConsumeFailure explains why the conditional transition matched
// no row. Used wins over expired so a duplicate scan reads as "already
// processed" rather than a fresh error.
func (s *PostgresStore) classifyConsumeFailure(ctx context.Context, codeHash string, now time.Time) error {
	redemptions := pgIdent(s.schema, "redemptions")

	var status string
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT status, expires_at FROM `+redemptions+` WHERE code_hash = $1`,
		codeHash,
	).Scan(&status, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCodeNotFound
	}
	if err != nil {
		return err
	}

	switch Status(status) {
	case StatusUsed:
		return ErrCodeUsed
	case StatusExpired:
		return ErrCodeExpired
	}
	if !now.Before(expiresAt) {
		// Lazy expiry: the row outlived its window without being used.
		_, _ = s.pool.Exec(ctx,
			`UPDATE `+redemptions+` SET status = 'expired' WHERE code_hash = $1 AND status = 'active'`,
			codeHash)
		return ErrCodeExpired
	}
	return ErrCodeNotFound
}

// ExpireStale flips active redemptions past their expiry to expired.
func (s *PostgresStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	redemptions := pgIdent(s.schema, "redemptions")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+redemptions+` SET status = 'expired' WHERE status = 'active' AND expires_at <= $1`,
		now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HistoryForUser lists a user's redemptions, newest first.
func (s *PostgresStore) HistoryForUser(ctx context.Context, userID string, limit int) ([]Redemption, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	redemptions := pgIdent(s.schema, "redemptions")
	rows, err := s.pool.Query(ctx, `
		SELECT `+redemptionColumns+`
		  FROM `+redemptions+`
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Redemption
	for rows.Next() {
		var rec Redemption
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.RewardID, &rec.CodeHash, &rec.PointsCost,
			&rec.IssuedAt, &rec.ExpiresAt, &rec.UsedAt, &status,
		); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
