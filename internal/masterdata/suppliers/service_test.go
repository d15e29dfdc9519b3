package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/masterdata/shared"
	internalShared "github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

func TestSupplierLifecycle(t *testing.T) {
	m := dbtest.Open(t)
	svc := NewService(NewRepository(m))
	ctx := context.Background()

	acme, err := svc.Create(ctx, Supplier{Name: "  Acme Traders ", ContactPerson: "Ravi", Phone: "555-0100"})
	require.NoError(t, err)
	require.NotZero(t, acme.ID)
	require.Equal(t, "Acme Traders", acme.Name)

	_, err = svc.Create(ctx, Supplier{Name: "Acme Traders"})
	require.ErrorIs(t, err, internalShared.ErrConflict)
	_, err = svc.Create(ctx, Supplier{Name: " "})
	require.ErrorIs(t, err, internalShared.ErrValidation)
	_, err = svc.Create(ctx, Supplier{Name: "Bad Mail", Email: "nope"})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(ctx, Supplier{Name: "Bolt Supply"})
	require.NoError(t, err)

	list, total, err := svc.List(ctx, shared.ListFilters{Search: "ACME", Limit: 10, Page: 1})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, acme.ID, list[0].ID)

	all, total, err := svc.List(ctx, shared.ListFilters{SortBy: "name", SortDir: shared.SortDesc})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "Bolt Supply", all[0].Name)

	acme.Notes = "net 30"
	require.NoError(t, svc.Update(ctx, acme.ID, acme))
	got, err := svc.GetByName(ctx, "Acme Traders")
	require.NoError(t, err)
	require.Equal(t, "net 30", got.Notes)

	require.ErrorIs(t, svc.Update(ctx, 999, acme), internalShared.ErrNotFound)
	acme.Name = "Bolt Supply"
	require.ErrorIs(t, svc.Update(ctx, got.ID, acme), internalShared.ErrConflict)
}

func TestDeleteSupplierWithOrders(t *testing.T) {
	m := dbtest.Open(t)
	svc := NewService(NewRepository(m))
	ctx := context.Background()

	s, err := svc.Create(ctx, Supplier{Name: "Acme"})
	require.NoError(t, err)
	dbtest.Exec(t, m, `INSERT INTO purchase_orders (order_number, supplier_id, supplier_name, order_date, created, last_updated)
		VALUES ('PO-20250101-0001', ?, 'Acme', '2025-01-01', '2025-01-01T00:00:00', '2025-01-01T00:00:00')`, s.ID)

	require.ErrorIs(t, svc.Delete(ctx, s.ID), internalShared.ErrConflict)

	dbtest.Exec(t, m, `DELETE FROM purchase_orders`)
	require.NoError(t, svc.Delete(ctx, s.ID))
	require.ErrorIs(t, svc.Delete(ctx, s.ID), internalShared.ErrNotFound)
	_, err = svc.Get(ctx, s.ID)
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}
