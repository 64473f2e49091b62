package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrMissingDSN is returned when DATABASE_URL is not set.
var ErrMissingDSN = errors.New("DATABASE_URL is not set")

type Config struct {
	DSN            string
	Schema         string
	MaxConns       int
	Timeout        time.Duration
	QueryTimeout   time.Duration
	TimeZone       string
	ClientEncoding string
}

// ConfigFromEnv reads DB config from environment variables.
// DATABASE_URL is required and must be a postgres URL; SQLAlchemy style
// driver suffixes (postgresql+asyncpg://) are stripped.
func ConfigFromEnv() (Config, error) {
	dsn, err := NormalizeDSN(os.Getenv("DATABASE_URL"))
	if err != nil {
		return Config{}, err
	}
	maxConns := 5
	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNS %q", v)
		}
		maxConns = n
	}
	qt := 5 * time.Second
	if v := os.Getenv("DATABASE_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_QUERY_TIMEOUT %q", v)
		}
		qt = d
	}
	return Config{
		DSN:            dsn,
		Schema:         os.Getenv("DATABASE_SCHEMA"),
		MaxConns:       maxConns,
		Timeout:        5 * time.Second,
		QueryTimeout:   qt,
		TimeZone:       os.Getenv("DATABASE_TIMEZONE"),
		ClientEncoding: os.Getenv("DATABASE_CLIENT_ENCODING"),
	}, nil
}

// NormalizeDSN validates a postgres connection URL and returns it in the form lib/pq accepts.
func NormalizeDSN(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingDSN
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", fmt.Errorf("malformed DATABASE_URL: missing scheme")
	}
	// postgresql+asyncpg -> postgresql
	scheme, _, _ = strings.Cut(scheme, "+")
	dsn := scheme + "://" + rest
	if _, err := pq.ParseURL(dsn); err != nil {
		return "", fmt.Errorf("malformed DATABASE_URL: %w", err)
	}
	return dsn, nil
}

// SafeURL returns the DSN with the password redacted, for logging.
func SafeURL(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// Connect opens a *sqlx.DB on lib/pq and verifies connectivity with a ping
func Connect(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applySession(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// applySession runs session-level SET statements. They only reach the
// connection that runs them, so they are best suited to single-connection pools
// or to servers where the database default already matches.
func applySession(ctx context.Context, db *sqlx.DB, cfg Config) error {
	if cfg.TimeZone != "" {
		if _, err := db.ExecContext(ctx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			return fmt.Errorf("set time zone: %w", err)
		}
	}
	if cfg.ClientEncoding != "" {
		if _, err := db.ExecContext(ctx, "SET client_encoding = "+quoteLiteral(cfg.ClientEncoding)); err != nil {
			return fmt.Errorf("set client_encoding: %w", err)
		}
	}
	return nil
}

// Table returns a quoted, optionally schema-qualified table name.
func Table(schema, name string) string {
	if schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
