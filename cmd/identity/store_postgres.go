package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"circuito/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "circuito").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return OpError{Op: "identity.WithSchema", Kind: ErrInvalidInput, Msg: "empty schema"}
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, OpError{Op: "identity.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	return st, nil
}

const userColumns = `
	id, email, email_norm, display_name, role,
	station_id, partner_id, impact_points, level,
	collections_validated, password_hash, created_at`

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

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

	u := User{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         in.Role,
		StationID:    in.StationID,
		PartnerID:    in.PartnerID,
		PasswordHash: in.PasswordHash,
		Level:        1,
		CreatedAt:    now,
	}

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+users+` (
			id, email, email_norm, display_name, role,
			station_id, partner_id, impact_points, level,
			collections_validated, password_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 1, 0, $8, $9)
	`, u.ID, u.Email, u.EmailNorm, u.DisplayName, string(u.Role),
		u.StationID, u.PartnerID, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return u, nil
}

// GetByID loads a user by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.getBy(ctx, "identity.GetByID", "id", id)
}

// GetByEmailNorm loads a user by normalized email (login path).
func (s *PostgresStore) GetByEmailNorm(ctx context.Context, emailNorm string) (User, error) {
	return s.getBy(ctx, "identity.GetByEmailNorm", "email_norm", emailNorm)
}

func (s *PostgresStore) getBy(ctx context.Context, op, column, value string) (User, error) {
	if strings.TrimSpace(value) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty key"}
	}

	users := pgIdent(s.schema, "users")
	var u User
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE `+column+` = $1`,
		value,
	).Scan(
		&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &role,
		&u.StationID, &u.PartnerID, &u.ImpactPoints, &u.Level,
		&u.CollectionsValidated, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return "email", true
	}
	return pgErr.ConstraintName, true
}
