package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/safar/go-order-store/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := NewLegacyConnection(&config.LegacyConfig{
		Driver:       "sqlite3",
		DSN:          filepath.Join(t.TempDir(), "tx.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE [Shippers] ([ID] INTEGER PRIMARY KEY, [Company] TEXT)`)
	require.NoError(t, err)
	return db
}

func countShippers(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM [Shippers]`))
	return n
}

func insertShipper(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO [Shippers] ([Company]) VALUES (?)`, "Speedy Express")
	return err
}

func TestWithTransactionCommits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := WithTransaction(ctx, db, DriverTxOptions(), func(tx *sqlx.Tx) error {
		return insertShipper(ctx, tx)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countShippers(t, db))
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTransaction(ctx, db, DriverTxOptions(), func(tx *sqlx.Tx) error {
		if err := insertShipper(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countShippers(t, db))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	opts := TxOptions{MaxRetries: 3}

	t.Run("permanent error is not retried", func(t *testing.T) {
		db := setupTestDB(t)
		attempts := 0
		err := WithRetry(ctx, db, opts, func(tx *sqlx.Tx) error {
			attempts++
			return &pq.Error{Code: "23505"}
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("serialization failure is retried", func(t *testing.T) {
		db := setupTestDB(t)
		attempts := 0
		err := WithRetry(ctx, db, opts, func(tx *sqlx.Tx) error {
			attempts++
			if err := insertShipper(ctx, tx); err != nil {
				return err
			}
			if attempts < 3 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 1, countShippers(t, db))
	})

	t.Run("lock timeout is retried", func(t *testing.T) {
		db := setupTestDB(t)
		attempts := 0
		err := WithRetry(ctx, db, opts, func(tx *sqlx.Tx) error {
			attempts++
			if attempts == 1 {
				return fmt.Errorf("lock order: %w", &pq.Error{Code: "55P03"})
			}
			return insertShipper(ctx, tx)
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, countShippers(t, db))
	})

	t.Run("wrapped context error is not retried", func(t *testing.T) {
		db := setupTestDB(t)
		attempts := 0
		err := WithRetry(ctx, db, opts, func(tx *sqlx.Tx) error {
			attempts++
			return fmt.Errorf("insert order: %w", context.DeadlineExceeded)
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		db := setupTestDB(t)
		attempts := 0
		err := WithRetry(ctx, db, opts, func(tx *sqlx.Tx) error {
			attempts++
			return &pq.Error{Code: "40P01"}
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries (3) exceeded")
		assert.Equal(t, 4, attempts)
	})

	t.Run("cancelled context stops before begin", func(t *testing.T) {
		db := setupTestDB(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := WithRetry(cctx, db, opts, func(tx *sqlx.Tx) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
