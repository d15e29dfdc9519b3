// Package dbtest opens throwaway databases for integration tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/platform/migrate"
	_ "github.com/tillpoint/tillpoint/internal/testing/guard"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenRaw opens an empty SQLite file in a temp dir without migrating it.
func OpenRaw(t testing.TB) *db.Manager {
	t.Helper()
	m, err := db.Open(context.Background(), db.Options{
		Target:       filepath.Join(t.TempDir(), "tillpoint.db"),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
		Logger:       Logger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// Open returns a fully migrated SQLite database.
func Open(t testing.TB) *db.Manager {
	t.Helper()
	m := OpenRaw(t)
	_, err := migrate.New(m, Logger()).Run(context.Background())
	require.NoError(t, err)
	return m
}

// Exec runs statements on a fresh unit and fails the test on error.
func Exec(t testing.TB, m *db.Manager, query string, args ...any) db.Result {
	t.Helper()
	var res db.Result
	err := m.Run(context.Background(), func(ctx context.Context, u *db.Unit) error {
		var err error
		res, err = u.Exec(ctx, query, args...)
		return err
	})
	require.NoError(t, err, query)
	return res
}

// Count runs a single-value query.
func Count(t testing.TB, m *db.Manager, query string, args ...any) int64 {
	t.Helper()
	var n int64
	err := m.Run(context.Background(), func(ctx context.Context, u *db.Unit) error {
		var err error
		n, err = u.Count(ctx, query, args...)
		return err
	})
	require.NoError(t, err, query)
	return n
}

// Rows runs a query and returns every row.
func Rows(t testing.TB, m *db.Manager, query string, args ...any) []db.Row {
	t.Helper()
	var rows []db.Row
	err := m.Run(context.Background(), func(ctx context.Context, u *db.Unit) error {
		var err error
		rows, err = u.Query(ctx, query, args...)
		return err
	})
	require.NoError(t, err, query)
	return rows
}
