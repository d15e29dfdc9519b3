package inventory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

const productColumns = `sku, barcode, name, category, brand, description, cost_price, selling_price,
	quantity, reorder_level, dimensions, weight, color, image_path, supplier, date_added, last_updated`

// Repository persists products and their stock history.
type Repository struct {
	manager *db.Manager
	logger  *slog.Logger
}

// NewRepository constructs Repository.
func NewRepository(manager *db.Manager, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{manager: manager, logger: logger}
}

// TxRepository exposes the stock primitives shared by every ledger operation.
type TxRepository interface {
	GetProduct(ctx context.Context, sku string) (Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product, expectedQty int) error
	DeleteProduct(ctx context.Context, sku string) error
	// Decrement removes qty only when at least qty is on hand.
	Decrement(ctx context.Context, sku string, qty int, now string) error
	Increment(ctx context.Context, sku string, qty int, now string) error
	// AppendLog never fails the surrounding transaction.
	AppendLog(ctx context.Context, entry LogEntry)
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
}

type txRepo struct {
	u      *db.Unit
	logger *slog.Logger
}

// NewTxRepository binds the stock primitives to a unit with an open transaction.
func NewTxRepository(u *db.Unit, logger *slog.Logger) TxRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &txRepo{u: u, logger: logger}
}

// WithTx executes the callback inside a transaction on the context unit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.manager.InTx(ctx, func(ctx context.Context, u *db.Unit) error {
		return fn(ctx, NewTxRepository(u, r.logger))
	})
}

// GetProduct loads one product outside a transaction.
func (r *Repository) GetProduct(ctx context.Context, sku string) (Product, error) {
	var p Product
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		p, err = getProduct(ctx, u, sku)
		return err
	})
	return p, err
}

// FindByBarcode resolves a scanned barcode.
func (r *Repository) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	var p Product
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, "SELECT "+productColumns+" FROM inventory WHERE barcode = ?", barcode)
		if errors.Is(err, db.ErrNoRows) {
			return shared.NotFound("inventory: barcode", "barcode %s not found", barcode)
		}
		if err != nil {
			return err
		}
		p = productFromRow(row)
		return nil
	})
	return p, err
}

// ListProducts returns products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(COALESCE(barcode, '')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if filter.LowStock {
		where = append(where, "quantity <= reorder_level")
	}
	query := "SELECT " + productColumns + " FROM inventory"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, sku"

	var out []Product
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out = make([]Product, 0, len(rows))
		for _, row := range rows {
			out = append(out, productFromRow(row))
		}
		return nil
	})
	return out, err
}

// ListLog returns the newest history entries for sku, or for all products when sku is empty.
func (r *Repository) ListLog(ctx context.Context, sku string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	query := "SELECT id, sku, action, description, old_value, new_value, qty_change, created FROM inventory_log"
	var args []any
	if sku != "" {
		query += " WHERE sku = ?"
		args = append(args, sku)
	}
	query += " ORDER BY id DESC LIMIT " + strconv.Itoa(limit)

	var out []LogEntry
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, LogEntry{
				ID:          row.Int64("id"),
				SKU:         row.String("sku"),
				Action:      row.String("action"),
				Description: row.String("description"),
				OldValue:    row.String("old_value"),
				NewValue:    row.String("new_value"),
				QtyChange:   row.Int("qty_change"),
				Created:     row.String("created"),
			})
		}
		return nil
	})
	return out, err
}

// ListPurchases returns the purchase history of sku, newest first.
func (r *Repository) ListPurchases(ctx context.Context, sku string) ([]Purchase, error) {
	var out []Purchase
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, `SELECT id, sku, date, supplier, quantity, cost_price, selling_price, total_cost,
			invoice_number, notes, created FROM purchases WHERE sku = ? ORDER BY id DESC`, sku)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, Purchase{
				ID:            row.Int64("id"),
				SKU:           row.String("sku"),
				Date:          row.String("date"),
				Supplier:      row.String("supplier"),
				Quantity:      row.Int("quantity"),
				CostPrice:     row.Decimal("cost_price"),
				SellingPrice:  row.Decimal("selling_price"),
				TotalCost:     row.Decimal("total_cost"),
				InvoiceNumber: row.String("invoice_number"),
				Notes:         row.String("notes"),
				Created:       row.String("created"),
			})
		}
		return nil
	})
	return out, err
}

func productFromRow(row db.Row) Product {
	return Product{
		SKU:          row.String("sku"),
		Barcode:      row.String("barcode"),
		Name:         row.String("name"),
		Category:     row.String("category"),
		Brand:        row.String("brand"),
		Description:  row.String("description"),
		CostPrice:    row.Decimal("cost_price"),
		SellingPrice: row.Decimal("selling_price"),
		Quantity:     row.Int("quantity"),
		ReorderLevel: row.Int("reorder_level"),
		Dimensions:   row.String("dimensions"),
		Weight:       row.String("weight"),
		Color:        row.String("color"),
		ImagePath:    row.String("image_path"),
		Supplier:     row.String("supplier"),
		DateAdded:    row.String("date_added"),
		LastUpdated:  row.String("last_updated"),
	}
}

func getProduct(ctx context.Context, u *db.Unit, sku string) (Product, error) {
	row, err := u.QueryRow(ctx, "SELECT "+productColumns+" FROM inventory WHERE sku = ?", sku)
	if errors.Is(err, db.ErrNoRows) {
		return Product{}, shared.NotFound("inventory: get product", "product %s not found", sku)
	}
	if err != nil {
		return Product{}, err
	}
	return productFromRow(row), nil
}

func (r *txRepo) GetProduct(ctx context.Context, sku string) (Product, error) {
	return getProduct(ctx, r.u, sku)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) error {
	_, err := r.u.Exec(ctx, db.Insert("inventory",
		"sku", "barcode", "name", "category", "brand", "description", "cost_price", "selling_price",
		"quantity", "reorder_level", "dimensions", "weight", "color", "image_path", "supplier",
		"date_added", "last_updated"),
		p.SKU, nullable(p.Barcode), p.Name, p.Category, p.Brand, p.Description, p.CostPrice, p.SellingPrice,
		p.Quantity, p.ReorderLevel, p.Dimensions, p.Weight, p.Color, p.ImagePath, p.Supplier,
		p.DateAdded, p.LastUpdated)
	return err
}

func (r *txRepo) UpdateProduct(ctx context.Context, p Product, expectedQty int) error {
	res, err := r.u.Exec(ctx, `UPDATE inventory SET barcode = ?, name = ?, category = ?, brand = ?, description = ?,
		cost_price = ?, selling_price = ?, quantity = ?, reorder_level = ?, dimensions = ?, weight = ?, color = ?,
		image_path = ?, supplier = ?, last_updated = ? WHERE sku = ? AND quantity = ?`,
		nullable(p.Barcode), p.Name, p.Category, p.Brand, p.Description,
		p.CostPrice, p.SellingPrice, p.Quantity, p.ReorderLevel, p.Dimensions, p.Weight, p.Color,
		p.ImagePath, p.Supplier, p.LastUpdated, p.SKU, expectedQty)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return shared.Wrap(shared.ErrBusy, "inventory: update product", ErrStockChanged)
	}
	return nil
}

func (r *txRepo) DeleteProduct(ctx context.Context, sku string) error {
	res, err := r.u.Exec(ctx, "DELETE FROM inventory WHERE sku = ?", sku)
	if err != nil {
		if db.IsConflict(err) {
			return shared.Conflict("inventory: delete product", "product %s has stock history", sku)
		}
		return err
	}
	if res.RowsAffected == 0 {
		return shared.NotFound("inventory: delete product", "product %s not found", sku)
	}
	return nil
}

func (r *txRepo) Decrement(ctx context.Context, sku string, qty int, now string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := r.u.Exec(ctx,
		"UPDATE inventory SET quantity = MAX(0, quantity - ?), last_updated = ? WHERE sku = ? AND quantity >= ?",
		qty, now, sku, qty)
	if err != nil {
		return err
	}
	if res.RowsAffected == 1 {
		return nil
	}
	shortage := shared.Shortage{SKU: sku, Requested: qty}
	p, err := r.GetProduct(ctx, sku)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		shortage.Missing = true
	case err != nil:
		return err
	default:
		shortage.Name = p.Name
		shortage.Available = p.Quantity
	}
	return &shared.InsufficientStockError{Shortages: []shared.Shortage{shortage}}
}

func (r *txRepo) Increment(ctx context.Context, sku string, qty int, now string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := r.u.Exec(ctx, "UPDATE inventory SET quantity = quantity + ?, last_updated = ? WHERE sku = ?", qty, now, sku)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return shared.NotFound("inventory: increment", "product %s not found", sku)
	}
	return nil
}

func (r *txRepo) AppendLog(ctx context.Context, entry LogEntry) {
	err := r.u.Savepoint(ctx, "inventory_log", func(ctx context.Context) error {
		_, err := r.u.Exec(ctx, db.Insert("inventory_log",
			"sku", "action", "description", "old_value", "new_value", "qty_change", "created"),
			entry.SKU, entry.Action, entry.Description, entry.OldValue, entry.NewValue, entry.QtyChange, entry.Created)
		return err
	})
	if err != nil {
		r.logger.Warn("inventory log entry skipped",
			slog.String("sku", entry.SKU),
			slog.String("action", entry.Action),
			slog.Any("error", err))
	}
}

func (r *txRepo) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	res, err := r.u.Exec(ctx, db.Insert("purchases",
		"sku", "date", "supplier", "quantity", "cost_price", "selling_price", "total_cost",
		"invoice_number", "notes", "created"),
		p.SKU, p.Date, p.Supplier, p.Quantity, p.CostPrice, p.SellingPrice, p.TotalCost,
		p.InvoiceNumber, p.Notes, p.Created)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}
