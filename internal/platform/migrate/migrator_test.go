package migrate_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/platform/migrate"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

func fixedClock() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestRunOnFreshDatabaseIsIdempotent(t *testing.T) {
	m := dbtest.OpenRaw(t)
	ctx := context.Background()

	first, err := migrate.New(m, dbtest.Logger()).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, first.Applied)
	require.Empty(t, first.Failed)
	require.Equal(t, 9, first.Current)

	second, err := migrate.New(m, dbtest.Logger()).Run(ctx)
	require.NoError(t, err)
	require.Empty(t, second.Applied)
	require.Equal(t, 9, second.Current)

	require.Equal(t, int64(9), dbtest.Count(t, m, "SELECT COUNT(*) FROM schema_migrations"))
	rows := dbtest.Rows(t, m, "SELECT value FROM settings WHERE key = ?", "currency_symbol")
	require.Len(t, rows, 1)
	require.Equal(t, "₹", rows[0].String("value"))
}

func createLegacySchema(t *testing.T, m *db.Manager) {
	t.Helper()
	for _, stmt := range []string{
		`CREATE TABLE inventory (sku TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT DEFAULT '',
			selling_price REAL DEFAULT 0, quantity INTEGER DEFAULT 0, supplier TEXT DEFAULT '',
			date_added TEXT, last_updated TEXT)`,
		`CREATE TABLE sales (id INTEGER PRIMARY KEY AUTOINCREMENT, receipt_number TEXT UNIQUE, timestamp TEXT,
			date TEXT, grand_total REAL DEFAULT 0, customer_name TEXT DEFAULT '', customer_phone TEXT DEFAULT '',
			customer_email TEXT DEFAULT '')`,
		`CREATE TABLE sale_items (id INTEGER PRIMARY KEY AUTOINCREMENT, sale_id INTEGER REFERENCES sales(id),
			sku TEXT, name TEXT, quantity INTEGER)`,
		`CREATE TABLE inventory_log (id INTEGER PRIMARY KEY AUTOINCREMENT, sku TEXT REFERENCES inventory(sku),
			action TEXT, qty_change INTEGER, created TEXT)`,
		`CREATE TABLE purchases (id INTEGER PRIMARY KEY AUTOINCREMENT, sku TEXT REFERENCES inventory(sku),
			date TEXT, quantity INTEGER, created TEXT)`,
		`CREATE TABLE purchase_orders (id INTEGER PRIMARY KEY AUTOINCREMENT, order_number TEXT UNIQUE,
			supplier_id INTEGER, status TEXT DEFAULT 'draft', order_date TEXT, created TEXT, last_updated TEXT)`,
		`CREATE TABLE purchase_order_items (id INTEGER PRIMARY KEY AUTOINCREMENT, order_id INTEGER,
			sku TEXT REFERENCES inventory(sku), quantity INTEGER, received_qty INTEGER DEFAULT 0)`,
		`CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT)`,
	} {
		dbtest.Exec(t, m, stmt)
	}
}

func TestRunUpgradesLegacyDatabase(t *testing.T) {
	m := dbtest.OpenRaw(t)
	createLegacySchema(t, m)

	dbtest.Exec(t, m, "INSERT INTO inventory (sku, name, quantity, supplier) VALUES (?, ?, ?, ?)", "NLF-CAB-1A2B", "Cable", 4, "Acme")
	dbtest.Exec(t, m, "INSERT INTO inventory (sku, name, quantity, supplier) VALUES (?, ?, ?, ?)", "NLF-LMP-9F00", "Lamp", 1, "Acme")
	dbtest.Exec(t, m, "INSERT INTO inventory (sku, name, quantity, supplier) VALUES (?, ?, ?, ?)", "123456", "Desk", 2, "Bolt")
	dbtest.Exec(t, m, "INSERT INTO sales (receipt_number, date, customer_name, customer_phone) VALUES (?, ?, ?, ?)", "INV-OLD-1", "2024-01-01", "Ravi", "9000000001")
	dbtest.Exec(t, m, "INSERT INTO sales (receipt_number, date, customer_name, customer_phone) VALUES (?, ?, ?, ?)", "INV-OLD-2", "2024-01-02", "", "")
	dbtest.Exec(t, m, "INSERT INTO sale_items (sale_id, sku, name, quantity) VALUES (1, ?, ?, 1)", "NLF-CAB-1A2B", "Cable")
	dbtest.Exec(t, m, "INSERT INTO inventory_log (sku, action, qty_change, created) VALUES (?, 'Sale', -1, '2024-01-01')", "NLF-CAB-1A2B")
	dbtest.Exec(t, m, "INSERT INTO purchases (sku, date, quantity, created) VALUES (?, '2024-01-01', 5, '2024-01-01')", "NLF-CAB-1A2B")
	dbtest.Exec(t, m, "INSERT INTO settings (key, value) VALUES ('currency_symbol', 'Rs.')")

	report, err := migrate.New(m, dbtest.Logger(), migrate.WithClock(fixedClock)).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Failed)

	require.Zero(t, dbtest.Count(t, m, "SELECT COUNT(*) FROM inventory WHERE sku LIKE 'NLF-%'"))
	for _, table := range []string{"sale_items", "inventory_log", "purchases"} {
		require.Zero(t, dbtest.Count(t, m, "SELECT COUNT(*) FROM "+table+" WHERE sku LIKE 'NLF-%'"), table)
	}
	cable := dbtest.Rows(t, m, "SELECT sku FROM inventory WHERE name = ?", "Cable")
	require.Len(t, cable, 1)
	newSKU := cable[0].String("sku")
	require.True(t, shared.IsSixDigit(newSKU), newSKU)
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM sale_items WHERE sku = ?", newSKU))
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM inventory_log WHERE sku = ?", newSKU))
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM purchases WHERE sku = ?", newSKU))
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM inventory WHERE sku = ?", "123456"))

	barcodes := dbtest.Rows(t, m, "SELECT barcode FROM inventory")
	seen := map[string]bool{}
	for _, r := range barcodes {
		code := r.String("barcode")
		require.True(t, shared.IsSixDigit(code), code)
		require.False(t, seen[code], "duplicate barcode %s", code)
		seen[code] = true
	}

	currency := dbtest.Rows(t, m, "SELECT value FROM settings WHERE key = 'currency_symbol'")
	require.Equal(t, "₹", currency[0].String("value"))

	require.Equal(t, int64(2), dbtest.Count(t, m, "SELECT COUNT(*) FROM suppliers"))
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM customers WHERE phone = ? AND name = ?", "9000000001", "Ravi"))

	require.Equal(t, int64(2), dbtest.Count(t, m, "SELECT COUNT(*) FROM sales WHERE status = 'Complete'"))
	dbtest.Exec(t, m, "UPDATE purchase_orders SET invoice_number = 'X' WHERE id = 0")
}

func TestRekeyContinuesPastMissingChildTable(t *testing.T) {
	m := dbtest.OpenRaw(t)
	ctx := context.Background()

	early := migrate.New(m, dbtest.Logger()).Steps()[:6]
	_, err := migrate.New(m, dbtest.Logger(), migrate.WithSteps(early...)).Run(ctx)
	require.NoError(t, err)

	dbtest.Exec(t, m, "INSERT INTO inventory (sku, name, quantity, date_added, last_updated) VALUES (?, ?, 2, '2024-01-01', '2024-01-01')", "NLF-A-1", "Adapter")
	dbtest.Exec(t, m, "INSERT INTO inventory_log (sku, action, qty_change, created) VALUES (?, 'Sale', -1, '2024-01-01')", "NLF-A-1")
	dbtest.Exec(t, m, "DROP TABLE purchases")

	report, err := migrate.New(m, dbtest.Logger(), migrate.WithClock(fixedClock)).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{7, 8, 9}, report.Applied)
	require.Empty(t, report.Failed)

	rows := dbtest.Rows(t, m, "SELECT sku FROM inventory WHERE name = ?", "Adapter")
	require.Len(t, rows, 1)
	newSKU := rows[0].String("sku")
	require.True(t, shared.IsSixDigit(newSKU), newSKU)
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM inventory_log WHERE sku = ?", newSKU))
}

func TestConcurrentRunsApplyEachStepOnce(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		path := filepath.Join(t.TempDir(), "shared.db")
		open := func() *db.Manager {
			mg, err := db.Open(ctx, db.Options{Target: path, BusyTimeout: 10 * time.Second, MaxOpenConns: 4, Logger: dbtest.Logger()})
			require.NoError(t, err)
			t.Cleanup(func() { _ = mg.Close() })
			return mg
		}
		a, b := open(), open()

		var g errgroup.Group
		reports := make([]migrate.Report, 2)
		for j, mg := range []*db.Manager{a, b} {
			g.Go(func() error {
				var err error
				reports[j], err = migrate.New(mg, dbtest.Logger()).Run(ctx)
				return err
			})
		}
		require.NoError(t, g.Wait())

		require.Equal(t, 9, len(reports[0].Applied)+len(reports[1].Applied))
		require.Equal(t, 9, reports[0].Current)
		require.Equal(t, 9, reports[1].Current)
		require.Equal(t, int64(9), dbtest.Count(t, a, "SELECT COUNT(*) FROM schema_migrations"))
	}
}

func TestCurrencyLeftAloneWhenAlreadyCorrect(t *testing.T) {
	m := dbtest.OpenRaw(t)
	dbtest.Exec(t, m, "CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT)")
	dbtest.Exec(t, m, "INSERT INTO settings (key, value) VALUES ('currency_symbol', '$')")

	_, err := migrate.New(m, dbtest.Logger()).Run(context.Background())
	require.NoError(t, err)
	rows := dbtest.Rows(t, m, "SELECT value FROM settings WHERE key = 'currency_symbol'")
	require.Equal(t, "$", rows[0].String("value"))
}

func TestSoftStepFailureRetriesOnNextRun(t *testing.T) {
	m := dbtest.OpenRaw(t)
	ctx := context.Background()
	attempts := 0
	steps := func() []migrate.Step {
		return []migrate.Step{
			{Version: 1, Name: "table", Apply: func(ctx context.Context, u *db.Unit) error {
				_, err := u.Exec(ctx, "CREATE TABLE IF NOT EXISTS t (x INTEGER)")
				return err
			}},
			{Version: 2, Name: "flaky data", Soft: true, Apply: func(ctx context.Context, u *db.Unit) error {
				attempts++
				if _, err := u.Exec(ctx, "INSERT INTO t (x) VALUES (?)", attempts); err != nil {
					return err
				}
				if attempts == 1 {
					return errors.New("transient")
				}
				return nil
			}},
			{Version: 3, Name: "later", Apply: func(ctx context.Context, u *db.Unit) error {
				_, err := u.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_t_x ON t(x)")
				return err
			}},
		}
	}

	first, err := migrate.New(m, dbtest.Logger(), migrate.WithSteps(steps()...)).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, first.Applied)
	require.Equal(t, []int{2}, first.Failed)
	require.Zero(t, dbtest.Count(t, m, "SELECT COUNT(*) FROM t"))

	second, err := migrate.New(m, dbtest.Logger(), migrate.WithSteps(steps()...)).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2}, second.Applied)
	require.Equal(t, int64(1), dbtest.Count(t, m, "SELECT COUNT(*) FROM t WHERE x = 2"))
}

func TestHardStepFailureAborts(t *testing.T) {
	m := dbtest.OpenRaw(t)
	ran := false
	mg := migrate.New(m, dbtest.Logger(), migrate.WithSteps(
		migrate.Step{Version: 1, Name: "broken", Apply: func(ctx context.Context, u *db.Unit) error {
			_, err := u.Exec(ctx, "CREATE TABLE (")
			return err
		}},
		migrate.Step{Version: 2, Name: "never", Apply: func(context.Context, *db.Unit) error {
			ran = true
			return nil
		}},
	))
	_, err := mg.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "step 1 (broken)")
	require.False(t, ran)

	latest, err := mg.Latest()
	require.NoError(t, err)
	require.Equal(t, 2, latest)
}
