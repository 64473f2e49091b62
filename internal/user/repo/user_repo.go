package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-trader-go/pkg/database"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("not found")

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const userColumns = `id, email, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db      *sqlx.DB
	schema  string
	table   string
	timeout time.Duration
	now     func() time.Time
}

func NewUserRepo(db *sqlx.DB, schema string, timeout time.Duration) *UserRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserRepo{
		db:      db,
		schema:  schema,
		table:   database.Table(schema, "users"),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureTable creates the schema (if any) and the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if r.schema != "" {
		if _, err := r.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+pq.QuoteIdentifier(r.schema)); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	ddl := `
CREATE TABLE IF NOT EXISTS ` + r.table + ` (
  id UUID PRIMARY KEY,
  email VARCHAR(320) NOT NULL,
  hashed_password VARCHAR(1024) NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT true,
  is_superuser BOOLEAN NOT NULL DEFAULT false,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email ON ` + r.table + ` (email);
`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// FindByID fetches a full user row.
func (r *UserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.get(ctx, r.db, `SELECT `+userColumns+` FROM `+r.table+` WHERE id=$1`, id)
}

// FindByEmail returns a user matched by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.get(ctx, r.db, `SELECT `+userColumns+` FROM `+r.table+` WHERE email=$1`, entity.NormalizeEmail(email))
}

func (r *UserRepo) get(ctx context.Context, db database.DBTX, q string, arg any) (*entity.User, error) {
	var row entity.User
	if err := db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &row, nil
}

// Create inserts a new user row. A zero ID is replaced by a fresh UUID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := *u
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Email = entity.NormalizeEmail(row.Email)
	now := r.now()
	row.CreatedAt, row.UpdatedAt = now, now

	q := `INSERT INTO ` + r.table + ` (` + userColumns + `)
		  VALUES (:id, :email, :hashed_password, :is_active, :is_superuser, :is_verified, :created_at, :updated_at)`
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, &row)
		return err
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &row, nil
}

// Update persists every mutable column of u. The ID never changes.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := *u
	row.Email = entity.NormalizeEmail(row.Email)
	row.UpdatedAt = r.now()

	q := `UPDATE ` + r.table + ` SET email=:email, hashed_password=:hashed_password, is_active=:is_active,
		  is_superuser=:is_superuser, is_verified=:is_verified, updated_at=:updated_at WHERE id=:id`
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, q, &row)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &row, nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return entity.ErrDuplicateEmail
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}
