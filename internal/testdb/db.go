package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/ragbench/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds setup queries issued by the helpers.
const TestTimeout = 5 * time.Second

var (
	shared     *sql.DB
	sharedErr  error
	sharedOnce sync.Once
)

// DatabaseURL returns DATABASE_URL, falling back to RAGBENCH_TEST_DB_URL.
func DatabaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	return os.Getenv("RAGBENCH_TEST_DB_URL")
}

// Open returns a migrated database shared by all tests of the binary. The
// test is skipped when neither a URL nor a container runtime is available.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	sharedOnce.Do(func() {
		shared, sharedErr = open(context.Background())
	})
	if sharedErr != nil {
		t.Skipf("integration database unavailable: %v", sharedErr)
	}
	return shared
}

func open(ctx context.Context) (*sql.DB, error) {
	dsn := DatabaseURL()
	if dsn == "" {
		var err error
		dsn, err = startPostgres(ctx)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pingWithRetry(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.Migrate(ctx, db, quiet); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// pingWithRetry waits for a freshly started server to accept connections.
func pingWithRetry(ctx context.Context, db *sql.DB) error {
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not reachable: %w", errors.Join(err, ctx.Err()))
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Reset truncates all pipeline tables.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `TRUNCATE results, items, tasks RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to truncate tables")
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
