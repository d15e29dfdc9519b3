package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/shared"
)

const pgEnv = "TILLPOINT_TEST_PG_DSN"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(t *testing.T, busy time.Duration) *Manager {
	t.Helper()
	m, err := Open(context.Background(), Options{
		Target:       filepath.Join(t.TempDir(), "unit.db"),
		BusyTimeout:  busy,
		MaxOpenConns: 4,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// backends returns an embedded manager and, when configured, a client-server one.
func backends(t *testing.T) map[string]*Manager {
	t.Helper()
	out := map[string]*Manager{"embedded": openSQLite(t, time.Second)}
	if dsn := os.Getenv(pgEnv); dsn != "" {
		m, err := Open(context.Background(), Options{Target: dsn, Logger: quietLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close() })
		out["client-server"] = m
	}
	return out
}

func createFixture(t *testing.T, ctx context.Context, u *Unit) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS sales",
		"DROP TABLE IF EXISTS settings",
		"DROP TABLE IF EXISTS inventory",
		"CREATE TABLE sales (id " + u.Dialect().SerialPrimaryKey() + ", receipt_number TEXT UNIQUE NOT NULL, grand_total NUMERIC(14,2) DEFAULT 0)",
		"CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT)",
		"CREATE TABLE inventory (sku TEXT PRIMARY KEY, name TEXT, quantity INTEGER NOT NULL DEFAULT 0)",
	} {
		_, err := u.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

func TestCanonicalStatementsBehaveAlikeOnEveryBackend(t *testing.T) {
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := m.NewUnit()
			defer u.Release()
			createFixture(t, ctx, u)

			_, err := u.Exec(ctx, "PRAGMA foreign_keys = ON")
			require.NoError(t, err)

			res, err := u.Exec(ctx, Insert("sales", "receipt_number", "grand_total"), "INV-1", decimal.RequireFromString("10.50"))
			require.NoError(t, err)
			require.True(t, res.HasInsertID())
			require.Equal(t, int64(1), res.LastInsertID)
			require.Equal(t, int64(1), res.RowsAffected)

			res, err = u.Exec(ctx, InsertIgnore("sales", "receipt_number"), "INV-1")
			require.NoError(t, err)
			require.Equal(t, int64(0), res.RowsAffected)
			require.False(t, res.HasInsertID())

			res, err = u.Exec(ctx, Upsert("settings", "key", "value"), "currency_symbol", "Rs")
			require.NoError(t, err)
			require.False(t, res.HasInsertID())
			_, err = u.Exec(ctx, Upsert("settings", "key", "value"), "currency_symbol", "₹")
			require.NoError(t, err)
			row, err := u.QueryRow(ctx, "SELECT value FROM settings WHERE key = ?", "currency_symbol")
			require.NoError(t, err)
			require.Equal(t, "₹", row.String("value"))

			_, err = u.Exec(ctx, Insert("inventory", "sku", "name", "quantity"), "P1", "Widget", 2)
			require.NoError(t, err)
			res, err = u.Exec(ctx, "UPDATE inventory SET quantity = MAX(0, quantity - ?) WHERE sku = ?", 5, "P1")
			require.NoError(t, err)
			require.Equal(t, int64(1), res.RowsAffected)
			qty, err := u.Count(ctx, "SELECT quantity FROM inventory WHERE sku = ?", "P1")
			require.NoError(t, err)
			require.Equal(t, int64(0), qty)

			row, err = u.QueryRow(ctx, "SELECT id, receipt_number, grand_total FROM sales WHERE receipt_number = ?", "INV-1")
			require.NoError(t, err)
			require.Equal(t, int64(1), row.Int64("id"))
			require.Equal(t, "INV-1", row.StringAt(1))
			require.True(t, decimal.RequireFromString("10.5").Equal(row.Decimal("grand_total")))

			_, err = u.Exec(ctx, Insert("sales", "receipt_number"), "INV-1")
			require.ErrorIs(t, err, shared.ErrConflict)
		})
	}
}

func TestQueryRowNoRows(t *testing.T) {
	m := openSQLite(t, time.Second)
	ctx := context.Background()
	u := m.NewUnit()
	defer u.Release()
	createFixture(t, ctx, u)

	_, err := u.QueryRow(ctx, "SELECT sku FROM inventory WHERE sku = ?", "missing")
	require.ErrorIs(t, err, ErrNoRows)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	m := openSQLite(t, time.Second)
	ctx := context.Background()
	u := m.NewUnit()
	defer u.Release()
	createFixture(t, ctx, u)

	err := u.InTx(ctx, func(ctx context.Context) error {
		_, err := u.Exec(ctx, Insert("inventory", "sku", "quantity"), "A", 1)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = u.InTx(ctx, func(ctx context.Context) error {
		if _, err := u.Exec(ctx, Insert("inventory", "sku", "quantity"), "B", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, u.InTransaction())

	require.Panics(t, func() {
		_ = u.InTx(ctx, func(ctx context.Context) error {
			_, _ = u.Exec(ctx, Insert("inventory", "sku", "quantity"), "C", 1)
			panic("kaboom")
		})
	})
	require.False(t, u.InTransaction())

	n, err := u.Count(ctx, "SELECT COUNT(*) FROM inventory")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSavepointUndoesOnlyInnerWork(t *testing.T) {
	m := openSQLite(t, time.Second)
	ctx := context.Background()
	u := m.NewUnit()
	defer u.Release()
	createFixture(t, ctx, u)

	err := u.InTx(ctx, func(ctx context.Context) error {
		if _, err := u.Exec(ctx, Insert("inventory", "sku", "quantity"), "OUTER", 1); err != nil {
			return err
		}
		inner := u.Savepoint(ctx, "audit log", func(ctx context.Context) error {
			if _, err := u.Exec(ctx, Insert("inventory", "sku", "quantity"), "INNER", 1); err != nil {
				return err
			}
			_, err := u.Exec(ctx, Insert("inventory", "sku", "quantity"), "OUTER", 1)
			return err
		})
		require.ErrorIs(t, inner, shared.ErrConflict)
		return nil
	})
	require.NoError(t, err)

	rows, err := u.Query(ctx, "SELECT sku FROM inventory ORDER BY sku")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "OUTER", rows[0].String("sku"))

	require.ErrorIs(t, u.Savepoint(ctx, "x", func(context.Context) error { return nil }), ErrNoTx)
}

func TestEmbeddedConnectionsCarrySettingsFromDSN(t *testing.T) {
	m := openSQLite(t, 1500*time.Millisecond)
	ctx := context.Background()

	// Hold several units at once so distinct pooled connections are checked.
	units := make([]*Unit, 3)
	for i := range units {
		units[i] = m.NewUnit()
		_, err := units[i].Acquire(ctx)
		require.NoError(t, err)
	}
	for _, u := range units {
		fk, err := u.QueryRow(ctx, "PRAGMA foreign_keys")
		require.NoError(t, err)
		require.Equal(t, int64(1), fk.IntAt(0))

		busy, err := u.QueryRow(ctx, "PRAGMA busy_timeout")
		require.NoError(t, err)
		require.Equal(t, int64(1500), busy.IntAt(0))

		mode, err := u.QueryRow(ctx, "PRAGMA journal_mode")
		require.NoError(t, err)
		require.Equal(t, "wal", mode.StringAt(0))
		require.NoError(t, u.Release())
	}
}

func TestRunReusesContextUnitAndReleases(t *testing.T) {
	m := openSQLite(t, time.Second)
	ctx := context.Background()

	var seen *Unit
	err := m.Run(ctx, func(ctx context.Context, u *Unit) error {
		seen = u
		_, err := u.Exec(ctx, "CREATE TABLE t (x INTEGER)")
		require.NoError(t, err)
		require.True(t, u.Acquired())
		return m.Run(ctx, func(_ context.Context, inner *Unit) error {
			require.Same(t, u, inner)
			return nil
		})
	})
	require.NoError(t, err)
	require.False(t, seen.Acquired())
	require.NoError(t, seen.Release())
}

func TestLockContentionSurfacesAsBusy(t *testing.T) {
	m := openSQLite(t, 100*time.Millisecond)
	ctx := context.Background()

	holder := m.NewUnit()
	defer holder.Release()
	createFixture(t, ctx, holder)
	require.NoError(t, holder.Begin(ctx))
	_, err := holder.Exec(ctx, Insert("inventory", "sku", "quantity"), "LOCK", 1)
	require.NoError(t, err)

	waiter := m.NewUnit()
	defer waiter.Release()
	err = waiter.Begin(ctx)
	require.Error(t, err)
	require.True(t, shared.IsRetryable(err), err.Error())

	require.NoError(t, holder.Rollback())
}

func TestRowAccessorsTolerateDriverTypes(t *testing.T) {
	row := NewRow(
		[]string{"qty", "price", "name", "flag", "blob"},
		[]any{"7", 12.5, []byte("Widget"), int64(1), nil},
	)
	require.Equal(t, 7, row.Int("QTY"))
	require.True(t, decimal.RequireFromString("12.5").Equal(row.Decimal("price")))
	require.Equal(t, "Widget", row.String("name"))
	require.True(t, row.Bool("flag"))
	require.Equal(t, "", row.String("blob"))
	require.Equal(t, "", row.String("absent"))
	require.False(t, row.Has("absent"))
	require.Equal(t, map[string]any{"qty": "7", "price": 12.5, "name": "Widget", "flag": int64(1), "blob": nil}, row.Map())
	require.Nil(t, row.At(9))
}
