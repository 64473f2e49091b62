package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_MissingURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := ConfigFromEnv()
	require.ErrorIs(t, err, ErrMissingDSN)
}

func TestConfigFromEnv_Malformed(t *testing.T) {
	cases := []string{
		"not a url",
		"mysql://root@localhost/db",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("DATABASE_URL", raw)
			_, err := ConfigFromEnv()
			require.Error(t, err)
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql+asyncpg://trader:pw@db:5432/trader")
	t.Setenv("DATABASE_SCHEMA", "trader-bot")
	t.Setenv("DATABASE_MAX_CONNS", "")
	t.Setenv("DATABASE_QUERY_TIMEOUT", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://trader:pw@db:5432/trader", cfg.DSN)
	assert.Equal(t, "trader-bot", cfg.Schema)
	assert.Equal(t, 5, cfg.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
}

func TestConfigFromEnv_InvalidNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("DATABASE_MAX_CONNS", "zero")
	_, err := ConfigFromEnv()
	require.Error(t, err)

	t.Setenv("DATABASE_MAX_CONNS", "3")
	t.Setenv("DATABASE_QUERY_TIMEOUT", "soon")
	_, err = ConfigFromEnv()
	require.Error(t, err)
}

func TestSafeURL_RedactsPassword(t *testing.T) {
	got := SafeURL("postgres://trader:hunter2@db:5432/trader")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "db:5432")
}

func TestTable(t *testing.T) {
	assert.Equal(t, `"users"`, Table("", "users"))
	assert.Equal(t, `"trader-bot"."users"`, Table("trader-bot", "users"))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'Europe/Berlin'`, quoteLiteral("Europe/Berlin"))
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestWithTx_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE users SET is_active = false")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
			panic("handler blew up")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	called := false
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
