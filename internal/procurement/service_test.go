package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

var receiver = shared.Actor{Username: "mgr", Name: "Mina", Role: shared.RoleManager}

type fixture struct {
	m        *db.Manager
	svc      *Service
	stock    *inventory.Service
	supplier int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := dbtest.Open(t)
	clock := func() time.Time { return time.Date(2025, 7, 9, 8, 0, 0, 0, time.UTC) }
	svc := NewService(NewRepository(m, dbtest.Logger()), dbtest.Logger(), nil)
	svc.SetClock(clock)
	stock := inventory.NewService(inventory.NewRepository(m, dbtest.Logger()), dbtest.Logger(), nil)
	for _, in := range []inventory.ProductInput{
		{SKU: "A", Name: "Apple", Quantity: 1, CostPrice: decimal.NewFromInt(2)},
		{SKU: "B", Name: "Bread", Quantity: 0, CostPrice: decimal.NewFromInt(3)},
	} {
		_, err := stock.CreateProduct(context.Background(), in)
		require.NoError(t, err)
	}
	res := dbtest.Exec(t, m, db.Insert("suppliers", "name", "created", "last_updated"), "Acme", "2025-01-01T00:00:00", "2025-01-01T00:00:00")
	return fixture{m: m, svc: svc, stock: stock, supplier: res.LastInsertID}
}

func (f fixture) quantity(t *testing.T, sku string) int {
	t.Helper()
	p, err := f.stock.GetProduct(context.Background(), sku)
	require.NoError(t, err)
	return p.Quantity
}

func TestCreatePurchaseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{
		SupplierID: f.supplier,
		Lines: []POLineInput{
			{SKU: "A", Quantity: 10},
			{SKU: "B", Quantity: 4, CostPrice: decimal.RequireFromString("2.50")},
		},
	})
	require.NoError(t, err)
	require.Regexp(t, `^PO-20250709-[0-9A-F]{4}$`, po.OrderNumber)
	require.Equal(t, POStatusDraft, po.Status)
	require.Equal(t, "Acme", po.SupplierName)
	require.Equal(t, "2025-07-09", po.OrderDate)
	require.True(t, decimal.NewFromInt(30).Equal(po.TotalAmount))

	stored, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	require.Equal(t, "Apple", stored.Items[0].ProductName)
	require.True(t, decimal.NewFromInt(2).Equal(stored.Items[0].CostPrice))

	_, err = f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: 999, Lines: []POLineInput{{SKU: "A", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "ZZ", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "A", Quantity: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "A", Quantity: 1}, {SKU: "A", Quantity: 2}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	list, total, err := f.svc.ListPurchaseOrders(ctx, ListFilters{Status: POStatusDraft})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
}

func TestReceiveClampsToOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{
		SupplierID: f.supplier,
		Lines:      []POLineInput{{SKU: "A", Quantity: 10}, {SKU: "B", Quantity: 4}},
	})
	require.NoError(t, err)

	res, err := f.svc.ReceivePurchaseOrder(ctx, receiver, po.ID, ReceiveInput{
		Lines:         []ReceiveLine{{SKU: "A", Quantity: 6}},
		InvoiceNumber: "INV-77",
	})
	require.NoError(t, err)
	require.Equal(t, POStatusPartial, res.Order.Status)
	require.Equal(t, []AppliedLine{{SKU: "A", Requested: 6, Applied: 6}}, res.Applied)
	require.Equal(t, 7, f.quantity(t, "A"))

	res, err = f.svc.ReceivePurchaseOrder(ctx, receiver, po.ID, ReceiveInput{
		Lines: []ReceiveLine{{SKU: "A", Quantity: 9}, {SKU: "B", Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, res.Order.Status)
	require.Equal(t, []AppliedLine{{SKU: "A", Requested: 9, Applied: 4}, {SKU: "B", Requested: 4, Applied: 4}}, res.Applied)
	require.Equal(t, 11, f.quantity(t, "A"))
	require.Equal(t, 4, f.quantity(t, "B"))

	stored, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	for _, item := range stored.Items {
		require.Equal(t, item.Quantity, item.ReceivedQty)
	}
	require.Equal(t, "INV-77", stored.InvoiceNumber)
	require.Equal(t, "Mina", stored.ReceivedBy)

	_, err = f.svc.ReceivePurchaseOrder(ctx, receiver, po.ID, ReceiveInput{Lines: []ReceiveLine{{SKU: "A", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, 11, f.quantity(t, "A"))

	require.EqualValues(t, 3, dbtest.Count(t, f.m, "SELECT COUNT(*) FROM purchases"))
	require.EqualValues(t, 3, dbtest.Count(t, f.m, "SELECT COUNT(*) FROM inventory_log WHERE action = 'PO Received'"))
	require.EqualValues(t, 10, dbtest.Count(t, f.m, "SELECT SUM(quantity) FROM purchases WHERE sku = 'A'"))
	require.EqualValues(t, 1, dbtest.Count(t, f.m, "SELECT COUNT(*) FROM purchases WHERE invoice_number = 'INV-77' AND supplier = 'Acme' AND sku = 'A' AND quantity = 6"))
}

func TestReceiveRejectsUnknownLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "A", Quantity: 2}}})
	require.NoError(t, err)

	_, err = f.svc.ReceivePurchaseOrder(ctx, receiver, po.ID, ReceiveInput{Lines: []ReceiveLine{{SKU: "A", Quantity: 1}, {SKU: "B", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 1, f.quantity(t, "A"))

	_, err = f.svc.ReceivePurchaseOrder(ctx, receiver, 404, ReceiveInput{Lines: []ReceiveLine{{SKU: "A", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeletePurchaseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "A", Quantity: 2}}})
	require.NoError(t, err)
	done, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: f.supplier, Lines: []POLineInput{{SKU: "B", Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.ReceivePurchaseOrder(ctx, receiver, done.ID, ReceiveInput{Lines: []ReceiveLine{{SKU: "B", Quantity: 1}}})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeletePurchaseOrder(ctx, done.ID), shared.ErrInvalidState)
	require.NoError(t, f.svc.DeletePurchaseOrder(ctx, draft.ID))
	require.ErrorIs(t, f.svc.DeletePurchaseOrder(ctx, draft.ID), shared.ErrNotFound)
	require.EqualValues(t, 1, dbtest.Count(t, f.m, "SELECT COUNT(*) FROM purchase_order_items"))
}
