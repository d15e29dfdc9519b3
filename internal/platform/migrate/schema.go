package migrate

import (
	"strings"

	"github.com/tillpoint/tillpoint/internal/platform/db"
)

// baseTables creates every table on a fresh database. Legacy databases keep
// their tables and are brought forward by the add-column steps.
var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'staff',
		phone TEXT DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id {{serial}},
		name TEXT UNIQUE NOT NULL,
		contact_person TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created TEXT NOT NULL,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id {{serial}},
		name TEXT DEFAULT '',
		phone TEXT UNIQUE NOT NULL,
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created TEXT NOT NULL,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		sku TEXT PRIMARY KEY,
		barcode TEXT,
		name TEXT NOT NULL,
		category TEXT DEFAULT '',
		brand TEXT DEFAULT '',
		description TEXT DEFAULT '',
		cost_price NUMERIC(14,2) DEFAULT 0,
		selling_price NUMERIC(14,2) DEFAULT 0,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		reorder_level INTEGER DEFAULT 3,
		dimensions TEXT DEFAULT '',
		weight TEXT DEFAULT '',
		color TEXT DEFAULT '',
		image_path TEXT DEFAULT '',
		supplier TEXT DEFAULT '',
		date_added TEXT NOT NULL,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id {{serial}},
		receipt_number TEXT UNIQUE NOT NULL,
		timestamp TEXT NOT NULL,
		date TEXT NOT NULL,
		subtotal NUMERIC(14,2) DEFAULT 0,
		discount_amount NUMERIC(14,2) DEFAULT 0,
		tax_amount NUMERIC(14,2) DEFAULT 0,
		grand_total NUMERIC(14,2) DEFAULT 0,
		payment_method TEXT DEFAULT 'Cash',
		cashier TEXT DEFAULT '',
		customer_name TEXT DEFAULT '',
		customer_phone TEXT DEFAULT '',
		customer_email TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Complete',
		voided_at TEXT,
		voided_by TEXT,
		void_reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id {{serial}},
		sale_id INTEGER NOT NULL REFERENCES sales(id){{fk}},
		sku TEXT DEFAULT '',
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(14,2) DEFAULT 0,
		line_total NUMERIC(14,2) DEFAULT 0,
		discount_type TEXT DEFAULT 'none',
		discount_value NUMERIC(14,2) DEFAULT 0,
		discount_amount NUMERIC(14,2) DEFAULT 0,
		final_total NUMERIC(14,2) DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS held_transactions (
		hold_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		held_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_log (
		id {{serial}},
		sku TEXT NOT NULL REFERENCES inventory(sku){{fk}},
		action TEXT NOT NULL,
		description TEXT DEFAULT '',
		old_value TEXT DEFAULT '',
		new_value TEXT DEFAULT '',
		qty_change INTEGER DEFAULT 0,
		created TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id {{serial}},
		sku TEXT NOT NULL REFERENCES inventory(sku){{fk}},
		date TEXT NOT NULL,
		supplier TEXT DEFAULT '',
		quantity INTEGER NOT NULL,
		cost_price NUMERIC(14,2) DEFAULT 0,
		selling_price NUMERIC(14,2) DEFAULT 0,
		total_cost NUMERIC(14,2) DEFAULT 0,
		invoice_number TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id {{serial}},
		order_number TEXT UNIQUE NOT NULL,
		invoice_number TEXT DEFAULT '',
		supplier_id INTEGER REFERENCES suppliers(id){{fk}},
		supplier_name TEXT DEFAULT '',
		order_date TEXT NOT NULL,
		expected_date TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		notes TEXT DEFAULT '',
		total_amount NUMERIC(14,2) DEFAULT 0,
		received_date TEXT DEFAULT '',
		received_by TEXT DEFAULT '',
		receive_notes TEXT DEFAULT '',
		created TEXT NOT NULL,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_order_items (
		id {{serial}},
		order_id INTEGER NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE{{fk}},
		sku TEXT NOT NULL REFERENCES inventory(sku){{fk}},
		product_name TEXT DEFAULT '',
		quantity INTEGER NOT NULL,
		received_qty INTEGER NOT NULL DEFAULT 0,
		cost_price NUMERIC(14,2) DEFAULT 0,
		line_total NUMERIC(14,2) DEFAULT 0
	)`,
}

var baseIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(date)",
	"CREATE INDEX IF NOT EXISTS idx_sales_receipt ON sales(receipt_number)",
	"CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items(sale_id)",
	"CREATE INDEX IF NOT EXISTS idx_inventory_category ON inventory(category)",
	"CREATE INDEX IF NOT EXISTS idx_inventory_quantity ON inventory(quantity)",
	"CREATE INDEX IF NOT EXISTS idx_inventory_log_sku ON inventory_log(sku)",
	"CREATE INDEX IF NOT EXISTS idx_purchases_sku ON purchases(sku)",
	"CREATE INDEX IF NOT EXISTS idx_po_supplier ON purchase_orders(supplier_id)",
	"CREATE INDEX IF NOT EXISTS idx_po_status ON purchase_orders(status)",
	"CREATE INDEX IF NOT EXISTS idx_poi_order ON purchase_order_items(order_id)",
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// render substitutes dialect tokens in a DDL template.
func render(d db.Dialect, ddl string) string {
	return strings.NewReplacer(
		"{{serial}}", d.SerialPrimaryKey(),
		"{{fk}}", d.ForeignKeyMode(),
	).Replace(ddl)
}
