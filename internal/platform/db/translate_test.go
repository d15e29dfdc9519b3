package db

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

var translateCatalog = []struct {
	name  string
	query string
}{
	{"placeholders", "SELECT * FROM inventory WHERE sku = ? AND quantity >= ?"},
	{"quoted_marker", "SELECT '?' AS q, name FROM users WHERE username = ?"},
	{"escaped_quote", "SELECT 'it''s ?' FROM settings WHERE key = ?"},
	{"line_comment", "SELECT name -- what?\nFROM users WHERE id = ?"},
	{"upsert", "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)"},
	{"upsert_single_column", "INSERT OR REPLACE INTO tags (name) VALUES (?)"},
	{"upsert_unparseable", "INSERT OR REPLACE INTO settings SELECT key, value FROM staging WHERE key = ?"},
	{"ignore", "INSERT OR IGNORE INTO users (id, username, name) VALUES (?, ?, ?)"},
	{"ignore_generated_key", "INSERT OR IGNORE INTO customers (name, phone) VALUES (?, ?);"},
	{"scalar_max", "UPDATE inventory SET quantity = MAX(0, quantity - ?), last_updated = ? WHERE sku = ?"},
	{"aggregate_max", "SELECT MAX(id) FROM sales"},
	{"nested_max", "SELECT MAX(COALESCE(MAX(a, b), 0), c) FROM t"},
	{"pragma", "PRAGMA foreign_keys = ON"},
	{"returning", "INSERT INTO sales (receipt_number, grand_total) VALUES (?, ?)"},
	{"no_generated_key", "INSERT INTO inventory (sku, name) VALUES (?, ?)"},
}

func TestTranslateClientServerGolden(t *testing.T) {
	var buf bytes.Buffer
	for _, tc := range translateCatalog {
		tr := Translate(ClientServer, tc.query)
		out := tr.SQL
		if tr.Skip {
			out = "(skipped)"
		}
		fmt.Fprintf(&buf, "-- %s\n%s\n\n", tc.name, out)
	}
	g := goldie.New(t)
	g.Assert(t, "translate_client_server", buf.Bytes())
}

func TestTranslateEmbeddedPassThrough(t *testing.T) {
	for _, tc := range translateCatalog {
		tr := Translate(Embedded, tc.query)
		require.Equal(t, tc.query, tr.SQL, tc.name)
		require.False(t, tr.Skip, tc.name)
		require.False(t, tr.Returning, tc.name)
	}
}

func TestTranslateInsertTarget(t *testing.T) {
	cases := []struct {
		query   string
		table   string
		keyed   bool
		backend Backend
	}{
		{"INSERT INTO sale_items (sale_id) VALUES (?)", "sale_items", true, Embedded},
		{"insert into Inventory_Log (sku) values (?)", "inventory_log", true, ClientServer},
		{`INSERT INTO "purchases" (sku) VALUES (?)`, "purchases", true, ClientServer},
		{"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", "settings", false, ClientServer},
		{"INSERT INTO users (id) VALUES (?)", "users", false, Embedded},
	}
	for _, tc := range cases {
		tr := Translate(tc.backend, tc.query)
		require.True(t, tr.Insert, tc.query)
		require.Equal(t, tc.table, tr.Table, tc.query)
		require.Equal(t, tc.keyed, tr.GeneratesKey(), tc.query)
		require.Equal(t, tc.keyed && tc.backend == ClientServer, tr.Returning, tc.query)
	}
}

func TestTranslateKeepsExistingReturning(t *testing.T) {
	tr := Translate(ClientServer, "INSERT INTO sales (receipt_number) VALUES (?) RETURNING id, receipt_number")
	require.Equal(t, "INSERT INTO sales (receipt_number) VALUES ($1) RETURNING id, receipt_number", tr.SQL)
	require.False(t, tr.Returning)
}

func TestTranslateIsPure(t *testing.T) {
	q := "UPDATE inventory SET quantity = MAX(0, quantity - ?) WHERE sku = ?"
	first := Translate(ClientServer, q)
	second := Translate(ClientServer, q)
	require.Equal(t, first, second)
}

func TestBuilder(t *testing.T) {
	require.Equal(t, "INSERT INTO sales (a, b) VALUES (?, ?)", Insert("sales", "a", "b"))
	require.Equal(t, "INSERT OR IGNORE INTO users (id) VALUES (?)", InsertIgnore("users", "id"))
	require.Equal(t, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", Upsert("settings", "key", "value"))
	require.Equal(t, "", Placeholders(0))

	tr := Translate(ClientServer, Upsert("settings", "key", "value"))
	require.Equal(t, "INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value", tr.SQL)
}

func TestBackendFor(t *testing.T) {
	require.Equal(t, ClientServer, BackendFor("postgres://u:p@localhost/db"))
	require.Equal(t, ClientServer, BackendFor("PostgreSQL://host/db"))
	require.Equal(t, Embedded, BackendFor("data/tillpoint.db"))
	require.Equal(t, "embedded", Embedded.String())
	require.Equal(t, "client-server", ClientServer.String())
}
