package sales

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/masterdata/customers"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

const saleColumns = `id, receipt_number, timestamp, date, subtotal, discount_amount, tax_amount, grand_total,
	payment_method, cashier, customer_name, customer_phone, customer_email, status, voided_at, voided_by, void_reason`

const itemColumns = `id, sale_id, sku, name, quantity, unit_price, line_total, discount_type, discount_value,
	discount_amount, final_total`

// Repository persists sales, their items and held carts.
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

// TxRepository exposes the writes of one sale or void transaction.
type TxRepository interface {
	Stock() inventory.TxRepository
	GetSale(ctx context.Context, receipt string) (Sale, error)
	// InsertSale fails with ErrConflict when the receipt number is taken and
	// leaves the transaction usable.
	InsertSale(ctx context.Context, sale *Sale) error
	InsertItem(ctx context.Context, item *SaleItem) error
	MarkVoided(ctx context.Context, saleID int64, at, by, reason string) error
	RecordCustomer(ctx context.Context, name, phone, email, now string) error
}

type txRepo struct {
	u     *db.Unit
	stock inventory.TxRepository
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.manager.InTx(ctx, func(ctx context.Context, u *db.Unit) error {
		return fn(ctx, &txRepo{u: u, stock: inventory.NewTxRepository(u, r.logger)})
	})
}

// GetSale loads a sale and its items by receipt number.
func (r *Repository) GetSale(ctx context.Context, receipt string) (Sale, error) {
	var sale Sale
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		sale, err = getSale(ctx, u, receipt)
		return err
	})
	return sale, err
}

// ListSales returns sales newest first with their items.
func (r *Repository) ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error) {
	var (
		where []string
		args  []any
	)
	if req.From != "" {
		where = append(where, "date >= ?")
		args = append(args, req.From)
	}
	if req.To != "" {
		where = append(where, "date <= ?")
		args = append(args, req.To)
	}
	if req.Status != "" {
		where = append(where, "status = ?")
		args = append(args, req.Status)
	}
	if req.CustomerPhone != "" {
		where = append(where, "customer_phone = ?")
		args = append(args, req.CustomerPhone)
	}
	query := "SELECT " + saleColumns + " FROM sales"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if req.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(req.Limit)
	}

	var out []Sale
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		out = make([]Sale, 0, len(rows))
		index := make(map[int64]int, len(rows))
		ids := make([]any, 0, len(rows))
		for i, row := range rows {
			s := saleFromRow(row)
			s.Items = []SaleItem{}
			out = append(out, s)
			index[s.ID] = i
			ids = append(ids, s.ID)
		}
		items, err := u.Query(ctx, "SELECT "+itemColumns+" FROM sale_items WHERE sale_id IN ("+
			db.Placeholders(len(ids))+") ORDER BY id", ids...)
		if err != nil {
			return err
		}
		for _, row := range items {
			item := itemFromRow(row)
			if i, ok := index[item.SaleID]; ok {
				out[i].Items = append(out[i].Items, item)
			}
		}
		return nil
	})
	return out, err
}

func getSale(ctx context.Context, u *db.Unit, receipt string) (Sale, error) {
	row, err := u.QueryRow(ctx, "SELECT "+saleColumns+" FROM sales WHERE receipt_number = ?", receipt)
	if errors.Is(err, db.ErrNoRows) {
		return Sale{}, shared.NotFound("sales: get", "sale %s not found", receipt)
	}
	if err != nil {
		return Sale{}, err
	}
	sale := saleFromRow(row)
	rows, err := u.Query(ctx, "SELECT "+itemColumns+" FROM sale_items WHERE sale_id = ? ORDER BY id", sale.ID)
	if err != nil {
		return Sale{}, err
	}
	sale.Items = make([]SaleItem, 0, len(rows))
	for _, row := range rows {
		sale.Items = append(sale.Items, itemFromRow(row))
	}
	return sale, nil
}

func saleFromRow(row db.Row) Sale {
	status := row.String("status")
	if status == "" {
		status = StatusComplete
	}
	return Sale{
		ID:             row.Int64("id"),
		ReceiptNumber:  row.String("receipt_number"),
		Timestamp:      row.String("timestamp"),
		Date:           row.String("date"),
		Subtotal:       row.Decimal("subtotal"),
		DiscountAmount: row.Decimal("discount_amount"),
		TaxAmount:      row.Decimal("tax_amount"),
		GrandTotal:     row.Decimal("grand_total"),
		PaymentMethod:  row.String("payment_method"),
		Cashier:        row.String("cashier"),
		CustomerName:   row.String("customer_name"),
		CustomerPhone:  row.String("customer_phone"),
		CustomerEmail:  row.String("customer_email"),
		Status:         status,
		VoidedAt:       row.String("voided_at"),
		VoidedBy:       row.String("voided_by"),
		VoidReason:     row.String("void_reason"),
	}
}

func itemFromRow(row db.Row) SaleItem {
	return SaleItem{
		ID:             row.Int64("id"),
		SaleID:         row.Int64("sale_id"),
		SKU:            row.String("sku"),
		Name:           row.String("name"),
		Quantity:       row.Int("quantity"),
		UnitPrice:      row.Decimal("unit_price"),
		LineTotal:      row.Decimal("line_total"),
		DiscountType:   row.String("discount_type"),
		DiscountValue:  row.Decimal("discount_value"),
		DiscountAmount: row.Decimal("discount_amount"),
		FinalTotal:     row.Decimal("final_total"),
	}
}

func (r *txRepo) Stock() inventory.TxRepository { return r.stock }

func (r *txRepo) GetSale(ctx context.Context, receipt string) (Sale, error) {
	return getSale(ctx, r.u, receipt)
}

func (r *txRepo) InsertSale(ctx context.Context, sale *Sale) error {
	return r.u.Savepoint(ctx, "sale_header", func(ctx context.Context) error {
		res, err := r.u.Exec(ctx, db.Insert("sales",
			"receipt_number", "timestamp", "date", "subtotal", "discount_amount", "tax_amount", "grand_total",
			"payment_method", "cashier", "customer_name", "customer_phone", "customer_email", "status"),
			sale.ReceiptNumber, sale.Timestamp, sale.Date, sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.GrandTotal,
			sale.PaymentMethod, sale.Cashier, sale.CustomerName, sale.CustomerPhone, sale.CustomerEmail, sale.Status)
		if err != nil {
			return err
		}
		sale.ID = res.LastInsertID
		return nil
	})
}

func (r *txRepo) InsertItem(ctx context.Context, item *SaleItem) error {
	res, err := r.u.Exec(ctx, db.Insert("sale_items",
		"sale_id", "sku", "name", "quantity", "unit_price", "line_total",
		"discount_type", "discount_value", "discount_amount", "final_total"),
		item.SaleID, item.SKU, item.Name, item.Quantity, item.UnitPrice, item.LineTotal,
		item.DiscountType, item.DiscountValue, item.DiscountAmount, item.FinalTotal)
	if err != nil {
		return err
	}
	item.ID = res.LastInsertID
	return nil
}

func (r *txRepo) MarkVoided(ctx context.Context, saleID int64, at, by, reason string) error {
	res, err := r.u.Exec(ctx, `UPDATE sales SET status = ?, voided_at = ?, voided_by = ?, void_reason = ?
		WHERE id = ? AND status != ?`, StatusVoided, at, by, reason, saleID, StatusVoided)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return shared.Errorf(shared.ErrInvalidState, "sales: void", "sale is already voided")
	}
	return nil
}

func (r *txRepo) RecordCustomer(ctx context.Context, name, phone, email, now string) error {
	return customers.RecordFromSale(ctx, r.u, name, phone, email, now)
}
