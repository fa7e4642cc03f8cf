package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts for retryable transactions
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 50 * time.Millisecond
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Isolation   sql.IsolationLevel
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		Isolation:   sql.LevelReadCommitted,
	}
}

// TxManager runs functions inside database transactions
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// DB returns the underlying pool
func (m *TxManager) DB() *sql.DB {
	return m.db
}

// WithTransaction executes fn within a read-committed transaction.
// It commits when fn returns nil and rolls back otherwise, including on panic.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.withIsolation(ctx, sql.LevelReadCommitted, fn)
}

func (m *TxManager) withIsolation(ctx context.Context, level sql.IsolationLevel, fn func(tx *sql.Tx) error) (err error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithRetry executes fn in a transaction, retrying with exponential backoff
// when PostgreSQL reports a deadlock or serialization failure.
func (m *TxManager) WithRetry(ctx context.Context, config RetryConfig, fn func(tx *sql.Tx) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		err := m.withIsolation(ctx, config.Isolation, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == config.MaxAttempts-1 {
			break
		}

		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d attempts: %v", ErrDeadlock, config.MaxAttempts, lastErr)
}
