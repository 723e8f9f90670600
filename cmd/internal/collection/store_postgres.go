package collection

import (
	"context"
	"errors"
	"strings"

	"circuito/cmd/internal/level"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists collections in PostgreSQL.
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

// ApplyValidated commits the validated collection in one transaction:
// insert the record, credit the balance (the UPDATE row lock serializes
// concurrent credits for the same user), recompute the level cache, bump
// the ambassador counter.
func (s *PostgresStore) ApplyValidated(ctx context.Context, rec Record) (ApplyResult, error) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" || rec.PointsAwarded <= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, err
	}

	collections := pgIdent(s.schema, "collections")
	users := pgIdent(s.schema, "users")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO `+collections+` (
			id, user_id, station_id, ambassador_id,
			material, weight_kg, points_awarded,
			status, validated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.UserID, rec.StationID, rec.AmbassadorID,
		string(rec.Material), rec.WeightKg, rec.PointsAwarded,
		string(rec.Status), rec.ValidatedAt, rec.CreatedAt)
	if err != nil {
		return ApplyResult{}, err
	}

	var newPoints, prevLevel int
	err = tx.QueryRow(ctx, `
		UPDATE `+users+`
		   SET impact_points = impact_points + $2
		 WHERE id = $1
		RETURNING impact_points, level
	`, rec.UserID, rec.PointsAwarded).Scan(&newPoints, &prevLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApplyResult{}, ErrUserNotFound
	}
	if err != nil {
		return ApplyResult{}, err
	}

	newLevel, lerr := level.For(newPoints)
	if lerr != nil {
		return ApplyResult{}, lerr
	}
	if newLevel.Number != prevLevel {
		if _, err := tx.Exec(ctx,
			`UPDATE `+users+` SET level = $2 WHERE id = $1`,
			rec.UserID, newLevel.Number,
		); err != nil {
			return ApplyResult{}, err
		}
	}

	if rec.AmbassadorID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE `+users+` SET collections_validated = collections_validated + 1 WHERE id = $1`,
			*rec.AmbassadorID,
		); err != nil {
			return ApplyResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, err
	}

	return ApplyResult{
		PrevPoints: newPoints - rec.PointsAwarded,
		NewPoints:  newPoints,
		PrevLevel:  prevLevel,
		NewLevel:   newLevel.Number,
	}, nil
}

// HistoryForUser lists a user's collections, newest first.
func (s *PostgresStore) HistoryForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	collections := pgIdent(s.schema, "collections")
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, station_id, ambassador_id,
		       material, weight_kg, points_awarded,
		       status, validated_at, created_at
		  FROM `+collections+`
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var material, status string
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.StationID, &rec.AmbassadorID,
			&material, &rec.WeightKg, &rec.PointsAwarded,
			&status, &rec.ValidatedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Material = Material(material)
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListStations returns the station catalog ordered by name.
func (s *PostgresStore) ListStations(ctx context.Context) ([]Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stations := pgIdent(s.schema, "stations")
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address FROM `+stations+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Address); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
