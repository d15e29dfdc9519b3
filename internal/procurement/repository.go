package procurement

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

const poColumns = `id, order_number, invoice_number, supplier_id, supplier_name, order_date, expected_date, status,
	notes, total_amount, received_date, received_by, receive_notes, created, last_updated`

const lineColumns = `id, order_id, sku, product_name, quantity, received_qty, cost_price, line_total`

// Repository provides persistence for purchase orders.
type Repository struct {
	manager *db.Manager
	logger  *slog.Logger
}

// NewRepository builds a repository.
func NewRepository(manager *db.Manager, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{manager: manager, logger: logger}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Stock() inventory.TxRepository
	SupplierName(ctx context.Context, id int64) (string, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	CreatePO(ctx context.Context, po *PurchaseOrder) error
	InsertPOLine(ctx context.Context, line *POLine) error
	// ReceiveLine adds qty to received_qty only while it stays within the ordered quantity.
	ReceiveLine(ctx context.Context, lineID int64, qty int) error
	MarkReceived(ctx context.Context, po PurchaseOrder) error
	DeletePO(ctx context.Context, id int64) error
}

type txRepo struct {
	u     *db.Unit
	stock inventory.TxRepository
}

// WithTx runs fn within a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.manager.InTx(ctx, func(ctx context.Context, u *db.Unit) error {
		return fn(ctx, &txRepo{u: u, stock: inventory.NewTxRepository(u, r.logger)})
	})
}

// GetPO returns purchase order with lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		po, err = getPO(ctx, u, id)
		return err
	})
	return po, err
}

// ListPOs returns purchase orders newest first, without lines, and the total count.
func (r *Repository) ListPOs(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	var (
		where []string
		args  []any
	)
	if filters.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filters.Status))
	}
	if filters.SupplierID > 0 {
		where = append(where, "supplier_id = ?")
		args = append(args, filters.SupplierID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var (
		out   []PurchaseOrder
		total int64
	)
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		total, err = u.Count(ctx, "SELECT COUNT(*) FROM purchase_orders"+clause, args...)
		if err != nil {
			return err
		}
		query := "SELECT " + poColumns + " FROM purchase_orders" + clause + " ORDER BY id DESC"
		if filters.Limit > 0 {
			query += " LIMIT " + strconv.Itoa(filters.Limit) + " OFFSET " + strconv.Itoa(filters.Offset)
		}
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out = make([]PurchaseOrder, 0, len(rows))
		for _, row := range rows {
			out = append(out, poFromRow(row))
		}
		return nil
	})
	return out, int(total), err
}

func getPO(ctx context.Context, u *db.Unit, id int64) (PurchaseOrder, error) {
	row, err := u.QueryRow(ctx, "SELECT "+poColumns+" FROM purchase_orders WHERE id = ?", id)
	if errors.Is(err, db.ErrNoRows) {
		return PurchaseOrder{}, shared.NotFound("procurement: get po", "purchase order %d not found", id)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po := poFromRow(row)
	rows, err := u.Query(ctx, "SELECT "+lineColumns+" FROM purchase_order_items WHERE order_id = ? ORDER BY id", id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = make([]POLine, 0, len(rows))
	for _, row := range rows {
		po.Items = append(po.Items, POLine{
			ID:          row.Int64("id"),
			OrderID:     row.Int64("order_id"),
			SKU:         row.String("sku"),
			ProductName: row.String("product_name"),
			Quantity:    row.Int("quantity"),
			ReceivedQty: row.Int("received_qty"),
			CostPrice:   row.Decimal("cost_price"),
			LineTotal:   row.Decimal("line_total"),
		})
	}
	return po, nil
}

func poFromRow(row db.Row) PurchaseOrder {
	status := POStatus(row.String("status"))
	if status == "" {
		status = POStatusDraft
	}
	return PurchaseOrder{
		ID:            row.Int64("id"),
		OrderNumber:   row.String("order_number"),
		InvoiceNumber: row.String("invoice_number"),
		SupplierID:    row.Int64("supplier_id"),
		SupplierName:  row.String("supplier_name"),
		OrderDate:     row.String("order_date"),
		ExpectedDate:  row.String("expected_date"),
		Status:        status,
		Notes:         row.String("notes"),
		TotalAmount:   row.Decimal("total_amount"),
		ReceivedDate:  row.String("received_date"),
		ReceivedBy:    row.String("received_by"),
		ReceiveNotes:  row.String("receive_notes"),
		Created:       row.String("created"),
		LastUpdated:   row.String("last_updated"),
	}
}

func (tx *txRepo) Stock() inventory.TxRepository { return tx.stock }

func (tx *txRepo) SupplierName(ctx context.Context, id int64) (string, error) {
	row, err := tx.u.QueryRow(ctx, "SELECT name FROM suppliers WHERE id = ?", id)
	if errors.Is(err, db.ErrNoRows) {
		return "", shared.NotFound("procurement: supplier", "supplier %d not found", id)
	}
	if err != nil {
		return "", err
	}
	return row.String("name"), nil
}

func (tx *txRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, tx.u, id)
}

func (tx *txRepo) CreatePO(ctx context.Context, po *PurchaseOrder) error {
	return tx.u.Savepoint(ctx, "po_header", func(ctx context.Context) error {
		res, err := tx.u.Exec(ctx, db.Insert("purchase_orders",
			"order_number", "invoice_number", "supplier_id", "supplier_name", "order_date", "expected_date",
			"status", "notes", "total_amount", "created", "last_updated"),
			po.OrderNumber, po.InvoiceNumber, po.SupplierID, po.SupplierName, po.OrderDate, po.ExpectedDate,
			string(po.Status), po.Notes, po.TotalAmount, po.Created, po.LastUpdated)
		if err != nil {
			return err
		}
		po.ID = res.LastInsertID
		return nil
	})
}

func (tx *txRepo) InsertPOLine(ctx context.Context, line *POLine) error {
	res, err := tx.u.Exec(ctx, db.Insert("purchase_order_items",
		"order_id", "sku", "product_name", "quantity", "received_qty", "cost_price", "line_total"),
		line.OrderID, line.SKU, line.ProductName, line.Quantity, line.ReceivedQty, line.CostPrice, line.LineTotal)
	if err != nil {
		return err
	}
	line.ID = res.LastInsertID
	return nil
}

func (tx *txRepo) ReceiveLine(ctx context.Context, lineID int64, qty int) error {
	res, err := tx.u.Exec(ctx, `UPDATE purchase_order_items SET received_qty = received_qty + ?
		WHERE id = ? AND received_qty + ? <= quantity`, qty, lineID, qty)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return shared.Errorf(shared.ErrBusy, "procurement: receive line", "line %d changed concurrently", lineID)
	}
	return nil
}

func (tx *txRepo) MarkReceived(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.u.Exec(ctx, `UPDATE purchase_orders SET status = ?, invoice_number = ?, received_date = ?,
		received_by = ?, receive_notes = ?, last_updated = ? WHERE id = ?`,
		string(po.Status), po.InvoiceNumber, po.ReceivedDate, po.ReceivedBy, po.ReceiveNotes, po.LastUpdated, po.ID)
	return err
}

func (tx *txRepo) DeletePO(ctx context.Context, id int64) error {
	if _, err := tx.u.Exec(ctx, "DELETE FROM purchase_order_items WHERE order_id = ?", id); err != nil {
		return err
	}
	res, err := tx.u.Exec(ctx, "DELETE FROM purchase_orders WHERE id = ?", id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return shared.NotFound("procurement: delete po", "purchase order %d not found", id)
	}
	return nil
}
