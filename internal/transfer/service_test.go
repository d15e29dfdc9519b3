package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/procurement"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

var tables = []string{
	"users", "inventory", "suppliers", "customers", "sales", "sale_items", "inventory_log",
	"purchases", "purchase_orders", "purchase_order_items", "held_transactions",
}

func clock() time.Time { return time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC) }

func seed(t *testing.T, m *db.Manager) {
	t.Helper()
	ctx := context.Background()
	log := dbtest.Logger()
	actor := shared.Actor{Username: "mgr", Name: "Mina", Role: shared.RoleManager}

	dbtest.Exec(t, m, db.Insert("users", "id", "name", "username", "password", "role", "phone", "active", "created"),
		"u1", "Mina", "mgr", "$2a$10$abcdefghijklmnopqrstuv", shared.RoleManager, "", 1, "2025-01-01T00:00:00")

	stock := inventory.NewService(inventory.NewRepository(m, log), log, nil)
	for _, in := range []inventory.ProductInput{
		{SKU: "100001", Name: "Kettle", Quantity: 4, SellingPrice: decimal.RequireFromString("25.50"), CostPrice: decimal.NewFromInt(12)},
		{SKU: "100002", Name: "Mug", Quantity: 10, SellingPrice: decimal.NewFromInt(4), CostPrice: decimal.NewFromInt(1)},
	} {
		_, err := stock.CreateProduct(ctx, in)
		require.NoError(t, err)
	}

	salesSvc := sales.NewService(sales.NewRepository(m, log), log, nil)
	salesSvc.SetClock(clock)
	sale, err := salesSvc.CreateSale(ctx, actor, sales.CreateSaleRequest{
		Items:         []sales.LineInput{{SKU: "100001", Quantity: 1}, {SKU: "100002", Quantity: 2}},
		CustomerName:  "Ravi",
		CustomerPhone: "555-0100",
	})
	require.NoError(t, err)
	_, err = salesSvc.CreateSale(ctx, actor, sales.CreateSaleRequest{Items: []sales.LineInput{{SKU: "100002", Quantity: 1}}})
	require.NoError(t, err)
	_, err = salesSvc.VoidSale(ctx, actor, sale.ReceiptNumber, sales.VoidSaleRequest{Reason: "test"})
	require.NoError(t, err)
	_, err = salesSvc.Hold(ctx, json.RawMessage(`{"items":[{"sku":"100002","quantity":1}]}`))
	require.NoError(t, err)

	res := dbtest.Exec(t, m, db.Insert("suppliers", "name", "created", "last_updated"), "Acme", "2025-01-01T00:00:00", "2025-01-01T00:00:00")
	poSvc := procurement.NewService(procurement.NewRepository(m, log), log, nil)
	poSvc.SetClock(clock)
	po, err := poSvc.CreatePurchaseOrder(ctx, procurement.CreatePOInput{
		SupplierID: res.LastInsertID,
		Lines:      []procurement.POLineInput{{SKU: "100001", Quantity: 6}, {SKU: "100002", Quantity: 3}},
	})
	require.NoError(t, err)
	_, err = poSvc.ReceivePurchaseOrder(ctx, actor, po.ID, procurement.ReceiveInput{
		Lines: []procurement.ReceiveLine{{SKU: "100001", Quantity: 2}},
	})
	require.NoError(t, err)
}

func count(t *testing.T, m *db.Manager, table string) int64 {
	t.Helper()
	return dbtest.Count(t, m, "SELECT COUNT(*) FROM "+table)
}

func TestExportImportPreservesCounts(t *testing.T) {
	ctx := context.Background()
	src := dbtest.Open(t)
	seed(t, src)

	var buf bytes.Buffer
	exporter := NewService(src, dbtest.Logger())
	exporter.SetClock(clock)
	require.NoError(t, exporter.WriteJSON(ctx, &buf))
	snap, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Equal(t, FormatVersion, snap.Format)
	require.Equal(t, "2025-08-01T10:00:00", snap.ExportedAt)

	dst := dbtest.Open(t)
	dbtest.Exec(t, dst, db.Insert("suppliers", "name", "created", "last_updated"), "Zeta", "2025-01-01T00:00:00", "2025-01-01T00:00:00")
	counts, err := NewService(dst, dbtest.Logger()).Import(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, Tally{Imported: 2}, counts[EntitySales])
	require.Equal(t, Tally{Imported: 1}, counts[EntityPurchaseOrders])
	require.Equal(t, Tally{Imported: 2}, counts[EntityInventory])

	for _, table := range tables {
		want := count(t, src, table)
		if table == "suppliers" {
			want++
		}
		require.Equal(t, want, count(t, dst, table), table)
	}

	srcRows := dbtest.Rows(t, src, "SELECT s.receipt_number, i.sku, i.quantity, i.final_total FROM sale_items i JOIN sales s ON s.id = i.sale_id ORDER BY s.receipt_number, i.sku")
	dstRows := dbtest.Rows(t, dst, "SELECT s.receipt_number, i.sku, i.quantity, i.final_total FROM sale_items i JOIN sales s ON s.id = i.sale_id ORDER BY s.receipt_number, i.sku")
	require.Len(t, dstRows, len(srcRows))
	for i := range srcRows {
		require.Equal(t, srcRows[i].String("receipt_number"), dstRows[i].String("receipt_number"))
		require.Equal(t, srcRows[i].String("sku"), dstRows[i].String("sku"))
		require.Equal(t, srcRows[i].Int("quantity"), dstRows[i].Int("quantity"))
		require.True(t, srcRows[i].Decimal("final_total").Equal(dstRows[i].Decimal("final_total")))
	}

	require.EqualValues(t, 1, dbtest.Count(t, dst, "SELECT COUNT(*) FROM sales WHERE status = 'Voided' AND void_reason = 'test'"))
	require.EqualValues(t, 1, dbtest.Count(t, dst,
		"SELECT COUNT(*) FROM purchase_orders p JOIN suppliers s ON s.id = p.supplier_id WHERE s.name = 'Acme'"))
	require.EqualValues(t, 2, dbtest.Count(t, dst, "SELECT received_qty FROM purchase_order_items WHERE sku = '100001'"))
	require.EqualValues(t, 6, dbtest.Count(t, dst, "SELECT quantity FROM inventory WHERE sku = '100001'"))

	again, err := NewService(dst, dbtest.Logger()).Import(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, Tally{Skipped: 2}, again[EntitySales])
	require.Equal(t, Tally{Skipped: 2}, again[EntityInventory])
	require.Equal(t, Tally{Skipped: 1}, again[EntityPurchaseOrders])
	require.EqualValues(t, count(t, src, "sales"), count(t, dst, "sales"))
}

func TestImportAssignsMissingSKUs(t *testing.T) {
	ctx := context.Background()
	m := dbtest.Open(t)
	counts, err := NewService(m, dbtest.Logger()).Import(ctx, Snapshot{
		Inventory: []Record{
			{"sku": "", "name": "Loose Item", "quantity": float64(3)},
			{"name": "Another", "quantity": json.Number("-2"), "selling_price": "9.99"},
		},
		Customers: []Record{{"phone": ""}, {"phone": "555"}},
		Settings:  map[string]any{"tax_rate": float64(5), "shop_name": "Corner"},
	})
	require.NoError(t, err)
	require.Equal(t, Tally{Imported: 2}, counts[EntityInventory])
	require.Equal(t, Tally{Imported: 1, Skipped: 1}, counts[EntityCustomers])
	require.Equal(t, Tally{Imported: 2}, counts[EntitySettings])

	rows := dbtest.Rows(t, m, "SELECT sku, barcode, quantity FROM inventory ORDER BY name")
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.True(t, shared.IsSixDigit(r.String("sku")))
		require.True(t, shared.IsSixDigit(r.String("barcode")))
		require.GreaterOrEqual(t, r.Int("quantity"), 0)
	}
	require.EqualValues(t, 5, dbtest.Count(t, m, "SELECT value FROM settings WHERE key = 'tax_rate'"))
}

func TestImportSkipsMalformedSaleOnly(t *testing.T) {
	ctx := context.Background()
	m := dbtest.Open(t)
	item := func(qty any, price any) map[string]any {
		return map[string]any{"sku": "100001", "name": "Kettle", "quantity": qty, "unit_price": price, "line_total": "25.50"}
	}
	counts, err := NewService(m, dbtest.Logger()).Import(ctx, Snapshot{
		Sales: []Record{
			{"receipt_number": "R1", "grand_total": "25.50", "items": []any{item(float64(1), "25.50")}},
			{"receipt_number": "R2", "grand_total": "25.50", "items": []any{item(float64(1), "25.50"), item("abc", "25.50")}},
			{"receipt_number": "", "items": []any{item(float64(1), "25.50")}},
			{"receipt_number": "R4", "grand_total": "n/a", "items": []any{item(float64(1), "25.50")}},
			{"receipt_number": "R5", "items": []any{item(float64(1), "twelve")}},
			{"receipt_number": "R3", "grand_total": "51", "items": []any{item(json.Number("2"), "25.50")}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, Tally{Imported: 2, Skipped: 4}, counts[EntitySales])

	rows := dbtest.Rows(t, m, "SELECT receipt_number FROM sales ORDER BY receipt_number")
	require.Len(t, rows, 2)
	require.Equal(t, "R1", rows[0].String("receipt_number"))
	require.Equal(t, "R3", rows[1].String("receipt_number"))
	require.EqualValues(t, 2, count(t, m, "sale_items"))
	require.EqualValues(t, 2, dbtest.Count(t, m,
		"SELECT i.quantity FROM sale_items i JOIN sales s ON s.id = i.sale_id WHERE s.receipt_number = 'R3'"))
}

func TestImportSkipsMalformedFlatRows(t *testing.T) {
	ctx := context.Background()
	m := dbtest.Open(t)
	counts, err := NewService(m, dbtest.Logger()).Import(ctx, Snapshot{
		Inventory: []Record{
			{"sku": "200001", "name": "Good", "quantity": "3", "selling_price": "2.50"},
			{"sku": "200002", "name": "Bad", "quantity": "lots"},
			{"sku": "200003", "name": "Worse", "cost_price": "cheap"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, Tally{Imported: 1, Skipped: 2}, counts[EntityInventory])
	require.EqualValues(t, 3, dbtest.Count(t, m, "SELECT quantity FROM inventory WHERE sku = '200001'"))
	require.EqualValues(t, 1, count(t, m, "inventory"))
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"a": json.Number("12"),
		"b": "3.5",
		"c": nil,
		"d": "true",
		"items": []any{
			map[string]any{"sku": "x"},
			"junk",
		},
	}
	require.Equal(t, int64(12), r.Int("a", 0))
	require.Equal(t, int64(3), r.Int("b", 0))
	require.Equal(t, int64(7), r.Int("c", 7))
	require.Equal(t, "fallback", r.Str("c", "fallback"))
	require.True(t, decimal.RequireFromString("3.5").Equal(r.Dec("b")))

	r["bad"] = "abc"
	_, err := r.ParseInt("bad", 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = r.ParseDec("bad")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, int64(4), r.Int("bad", 4))
	n, err := r.ParseInt("c", 9)
	require.NoError(t, err)
	require.Equal(t, int64(9), n)
	require.True(t, r.Active("d"))
	require.True(t, r.Active("missing"))
	require.Len(t, r.Items(), 1)
	require.Equal(t, "x", r.Items()[0].Str("sku", ""))
}
