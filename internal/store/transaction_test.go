package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestWithTransaction_Commit(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE leads SET status = 'contacted'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
			panic("kaboom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_BeginFails(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	err := m.WithTransaction(context.Background(), func(tx *sql.Tx) error { return nil })
	assert.ErrorContains(t, err, "failed to begin transaction")
}

func TestWithRetry_RetriesDeadlock(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnError(deadlock)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := m.WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}, func(tx *sql.Tx) error {
		attempts++
		_, err := tx.Exec("UPDATE projects SET status = 'active'")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry_GivesUp(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	serialization := &pgconn.PgError{Code: "40001"}
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := m.WithRetry(context.Background(), RetryConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond}, func(tx *sql.Tx) error {
		return serialization
	})

	assert.ErrorIs(t, err, ErrDeadlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry_NonRetryableFailsFast(t *testing.T) {
	db, mock := setupMockDB(t)
	m := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := m.WithRetry(context.Background(), DefaultRetryConfig(), func(tx *sql.Tx) error {
		attempts++
		return ErrNotFound
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_CancelledContext(t *testing.T) {
	db, _ := setupMockDB(t)
	m := NewTxManager(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WithRetry(ctx, DefaultRetryConfig(), func(tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
