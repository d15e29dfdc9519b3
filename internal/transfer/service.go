// Package transfer moves the whole database between backends as a JSON snapshot.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Service exports and imports snapshots.
type Service struct {
	manager *db.Manager
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a transfer service.
func NewService(manager *db.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{manager: manager, logger: logger, now: time.Now}
}

// SetClock overrides the time source used for missing timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

var flatExports = []struct {
	entity string
	query  string
}{
	{EntityUsers, "SELECT * FROM users ORDER BY created, id"},
	{EntityInventory, "SELECT * FROM inventory ORDER BY sku"},
	{EntitySuppliers, "SELECT * FROM suppliers ORDER BY id"},
	{EntityCustomers, "SELECT * FROM customers ORDER BY id"},
	{EntityInventoryLog, "SELECT * FROM inventory_log ORDER BY id"},
	{EntityPurchases, "SELECT * FROM purchases ORDER BY id"},
	{EntityHeld, "SELECT * FROM held_transactions ORDER BY held_at, hold_id"},
}

// Export reads every table into a snapshot.
func (s *Service) Export(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Format:     FormatVersion,
		ExportedAt: shared.Timestamp(s.now()),
		Backend:    s.manager.Backend().String(),
		Settings:   map[string]any{},
	}
	err := s.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		flat := make(map[string][]Record, len(flatExports))
		for _, e := range flatExports {
			rows, err := u.Query(ctx, e.query)
			if err != nil {
				return fmt.Errorf("transfer: export %s: %w", e.entity, err)
			}
			flat[e.entity] = records(rows)
		}
		snap.Users = flat[EntityUsers]
		snap.Inventory = flat[EntityInventory]
		snap.Suppliers = flat[EntitySuppliers]
		snap.Customers = flat[EntityCustomers]
		snap.InventoryLog = flat[EntityInventoryLog]
		snap.Purchases = flat[EntityPurchases]
		snap.HeldTransactions = flat[EntityHeld]

		rows, err := u.Query(ctx, "SELECT key, value FROM settings ORDER BY key")
		if err != nil {
			return fmt.Errorf("transfer: export settings: %w", err)
		}
		for _, r := range rows {
			snap.Settings[r.String("key")] = r.String("value")
		}

		snap.Sales, err = withItems(ctx, u, "SELECT * FROM sales ORDER BY id", "SELECT * FROM sale_items ORDER BY id", "sale_id")
		if err != nil {
			return fmt.Errorf("transfer: export sales: %w", err)
		}
		snap.PurchaseOrders, err = withItems(ctx, u, "SELECT * FROM purchase_orders ORDER BY id", "SELECT * FROM purchase_order_items ORDER BY id", "order_id")
		if err != nil {
			return fmt.Errorf("transfer: export purchase orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Info("snapshot exported",
		slog.Int("inventory", len(snap.Inventory)),
		slog.Int("sales", len(snap.Sales)),
		slog.Int("purchase_orders", len(snap.PurchaseOrders)))
	return snap, nil
}

func records(rows []db.Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Map())
	}
	return out
}

func withItems(ctx context.Context, u *db.Unit, headerSQL, itemSQL, parentCol string) ([]Record, error) {
	headers, err := u.Query(ctx, headerSQL)
	if err != nil {
		return nil, err
	}
	items, err := u.Query(ctx, itemSQL)
	if err != nil {
		return nil, err
	}
	byParent := make(map[int64][]Record, len(headers))
	for _, it := range items {
		id := it.Int64(parentCol)
		byParent[id] = append(byParent[id], it.Map())
	}
	out := make([]Record, 0, len(headers))
	for _, h := range headers {
		rec := Record(h.Map())
		lines := byParent[h.Int64("id")]
		if lines == nil {
			lines = []Record{}
		}
		rec["items"] = lines
		out = append(out, rec)
	}
	return out, nil
}

// WriteJSON exports the database and encodes it to w.
func (s *Service) WriteJSON(ctx context.Context, w io.Writer) error {
	snap, err := s.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadJSON decodes a snapshot.
func ReadJSON(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, shared.Validation("transfer: read", "malformed snapshot: %v", err)
	}
	if snap.Format > FormatVersion {
		return Snapshot{}, shared.Validation("transfer: read", "snapshot format %d is newer than %d", snap.Format, FormatVersion)
	}
	return snap, nil
}

// Import writes a snapshot into the database, skipping rows whose keys
// already exist. Each flat table commits as one group and each sale or
// purchase order commits on its own, so one bad row never loses the rest.
func (s *Service) Import(ctx context.Context, snap Snapshot) (Counts, error) {
	counts := Counts{}
	now := shared.Timestamp(s.now())
	err := s.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		imp := &importer{u: u, logger: s.logger, now: now, counts: counts}
		imp.users(ctx, snap.Users)
		imp.settings(ctx, snap.Settings)
		if err := imp.inventory(ctx, snap.Inventory); err != nil {
			return err
		}
		imp.suppliers(ctx, snap.Suppliers)
		imp.customers(ctx, snap.Customers)
		imp.sales(ctx, snap.Sales)
		imp.inventoryLog(ctx, snap.InventoryLog)
		imp.purchases(ctx, snap.Purchases)
		if err := imp.purchaseOrders(ctx, snap.PurchaseOrders, snap.Suppliers); err != nil {
			return err
		}
		imp.held(ctx, snap.HeldTransactions)
		return nil
	})
	if err != nil {
		return counts, err
	}
	for entity, t := range counts {
		s.logger.Info("import finished",
			slog.String("entity", entity),
			slog.Int("imported", t.Imported),
			slog.Int("skipped", t.Skipped))
	}
	return counts, nil
}

type importer struct {
	u      *db.Unit
	logger *slog.Logger
	now    string
	counts Counts
}

// group writes rows in one transaction, each behind its own savepoint. The
// tally only counts when the group commits.
func (imp *importer) group(ctx context.Context, entity string, rows []Record, insert func(context.Context, Record) (bool, error)) {
	if len(rows) == 0 {
		imp.counts.merge(entity, Tally{})
		return
	}
	var tally Tally
	err := imp.u.InTx(ctx, func(ctx context.Context) error {
		for i, r := range rows {
			var written bool
			err := imp.u.Savepoint(ctx, entity, func(ctx context.Context) error {
				var err error
				written, err = insert(ctx, r)
				return err
			})
			switch {
			case err != nil:
				imp.logger.Warn("import row skipped",
					slog.String("entity", entity),
					slog.Int("index", i),
					slog.Any("error", err))
				tally.Skipped++
			case written:
				tally.Imported++
			default:
				tally.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		imp.logger.Error("import group failed", slog.String("entity", entity), slog.Any("error", err))
		tally = Tally{Skipped: len(rows)}
	}
	imp.counts.merge(entity, tally)
}

func (imp *importer) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := imp.u.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (imp *importer) users(ctx context.Context, rows []Record) {
	query := db.InsertIgnore("users", "id", "name", "username", "password", "role", "phone", "active", "created")
	imp.group(ctx, EntityUsers, rows, func(ctx context.Context, r Record) (bool, error) {
		id := r.Str("id", "")
		if id == "" {
			id = shared.ShortID()
		}
		active := 0
		if r.Active("active") {
			active = 1
		}
		return imp.exec(ctx, query, id, r.Str("name", ""), r.Str("username", ""), r.Str("password", ""),
			r.Str("role", shared.RoleStaff), r.Str("phone", ""), active, r.Str("created", imp.now))
	})
}

func (imp *importer) settings(ctx context.Context, values map[string]any) {
	rows := make([]Record, 0, len(values))
	for key, value := range values {
		rows = append(rows, Record{"key": key, "value": value})
	}
	query := db.Upsert("settings", "key", "value")
	imp.group(ctx, EntitySettings, rows, func(ctx context.Context, r Record) (bool, error) {
		value, ok := r["value"].(string)
		if !ok && r["value"] != nil {
			raw, err := json.Marshal(r["value"])
			if err != nil {
				return false, err
			}
			value = string(raw)
		}
		return imp.exec(ctx, query, r.Str("key", ""), value)
	})
}

// inventory assigns a fresh six digit SKU to rows exported without one and
// a barcode to rows missing it.
func (imp *importer) inventory(ctx context.Context, rows []Record) error {
	existing, err := imp.u.Query(ctx, "SELECT sku, barcode FROM inventory")
	if err != nil {
		return fmt.Errorf("transfer: import inventory: %w", err)
	}
	usedSKU := make(map[string]struct{}, len(existing)+len(rows))
	usedBarcode := make(map[string]struct{}, len(existing)+len(rows))
	for _, r := range existing {
		usedSKU[r.String("sku")] = struct{}{}
		if code := r.String("barcode"); code != "" {
			usedBarcode[code] = struct{}{}
		}
	}
	for _, r := range rows {
		if sku := strings.TrimSpace(r.Str("sku", "")); sku != "" {
			usedSKU[sku] = struct{}{}
		}
		if code := strings.TrimSpace(r.Str("barcode", "")); code != "" {
			usedBarcode[code] = struct{}{}
		}
	}

	query := db.InsertIgnore("inventory", "sku", "barcode", "name", "category", "brand", "description",
		"cost_price", "selling_price", "quantity", "reorder_level", "dimensions", "weight", "color",
		"image_path", "supplier", "date_added", "last_updated")
	imp.group(ctx, EntityInventory, rows, func(ctx context.Context, rec Record) (bool, error) {
		r := checked(rec)
		sku := strings.TrimSpace(r.Str("sku", ""))
		if sku == "" {
			fresh, err := shared.UniqueSixDigit(usedSKU)
			if err != nil {
				return false, err
			}
			sku = fresh
		}
		barcode := strings.TrimSpace(r.Str("barcode", ""))
		if barcode == "" {
			fresh, err := shared.UniqueSixDigit(usedBarcode)
			if err != nil {
				return false, err
			}
			barcode = fresh
		}
		qty := r.Int("quantity", 0)
		if qty < 0 {
			qty = 0
		}
		args := []any{sku, barcode, r.Str("name", ""), r.Str("category", ""), r.Str("brand", ""),
			r.Str("description", ""), r.Dec("cost_price"), r.Dec("selling_price"), qty,
			r.Int("reorder_level", 3), r.Str("dimensions", ""), r.Str("weight", ""), r.Str("color", ""),
			r.Str("image_path", ""), r.Str("supplier", ""), r.Str("date_added", imp.now), r.Str("last_updated", imp.now)}
		if err := r.Err(); err != nil {
			return false, err
		}
		return imp.exec(ctx, query, args...)
	})
	return nil
}

func (imp *importer) suppliers(ctx context.Context, rows []Record) {
	query := db.InsertIgnore("suppliers", "name", "contact_person", "phone", "email", "address", "notes", "created", "last_updated")
	imp.group(ctx, EntitySuppliers, rows, func(ctx context.Context, r Record) (bool, error) {
		name := strings.TrimSpace(r.Str("name", ""))
		if name == "" {
			return false, shared.Validation("transfer: import supplier", "name is required")
		}
		return imp.exec(ctx, query, name, r.Str("contact_person", ""), r.Str("phone", ""), r.Str("email", ""),
			r.Str("address", ""), r.Str("notes", ""), r.Str("created", imp.now), r.Str("last_updated", imp.now))
	})
}

func (imp *importer) customers(ctx context.Context, rows []Record) {
	query := db.InsertIgnore("customers", "phone", "name", "email", "address", "notes", "created", "last_updated")
	imp.group(ctx, EntityCustomers, rows, func(ctx context.Context, r Record) (bool, error) {
		phone := strings.TrimSpace(r.Str("phone", ""))
		if phone == "" {
			return false, shared.Validation("transfer: import customer", "phone is required")
		}
		return imp.exec(ctx, query, phone, r.Str("name", ""), r.Str("email", ""), r.Str("address", ""),
			r.Str("notes", ""), r.Str("created", imp.now), r.Str("last_updated", imp.now))
	})
}

// parent writes one header with its lines in its own transaction.
func (imp *importer) parent(ctx context.Context, entity, key string, write func(ctx context.Context) (bool, error)) {
	var written bool
	err := imp.u.InTx(ctx, func(ctx context.Context) error {
		var err error
		written, err = write(ctx)
		return err
	})
	if err != nil {
		imp.logger.Warn("import row skipped", slog.String("entity", entity), slog.String("key", key), slog.Any("error", err))
	}
	if err == nil && written {
		imp.counts.merge(entity, Tally{Imported: 1})
		return
	}
	imp.counts.merge(entity, Tally{Skipped: 1})
}

func (imp *importer) sales(ctx context.Context, rows []Record) {
	imp.counts.merge(EntitySales, Tally{})
	header := db.InsertIgnore("sales", "receipt_number", "timestamp", "date", "subtotal", "discount_amount",
		"tax_amount", "grand_total", "payment_method", "cashier", "customer_name", "customer_phone",
		"customer_email", "status", "voided_at", "voided_by", "void_reason")
	line := db.Insert("sale_items", "sale_id", "sku", "name", "quantity", "unit_price", "line_total",
		"discount_type", "discount_value", "discount_amount", "final_total")
	for _, rec := range rows {
		s := checked(rec)
		receipt := s.Str("receipt_number", "")
		imp.parent(ctx, EntitySales, receipt, func(ctx context.Context) (bool, error) {
			if receipt == "" {
				return false, shared.Validation("transfer: import sale", "receipt_number is required")
			}
			args := []any{receipt, s.Str("timestamp", imp.now), s.Str("date", imp.now[:10]),
				s.Dec("subtotal"), s.Dec("discount_amount"), s.Dec("tax_amount"), s.Dec("grand_total"),
				s.Str("payment_method", "Cash"), s.Str("cashier", ""), s.Str("customer_name", ""),
				s.Str("customer_phone", ""), s.Str("customer_email", ""), s.Str("status", "Complete"),
				nullable(s.Record, "voided_at"), nullable(s.Record, "voided_by"), nullable(s.Record, "void_reason")}
			if err := s.Err(); err != nil {
				return false, err
			}
			res, err := imp.u.Exec(ctx, header, args...)
			if err != nil || res.RowsAffected == 0 {
				return false, err
			}
			for i, item := range s.Items() {
				it := checked(item)
				final := it.Dec("final_total")
				if _, ok := it.Record["final_total"]; !ok {
					final = it.Dec("line_total")
				}
				args := []any{res.LastInsertID, it.Str("sku", ""), it.Str("name", ""),
					it.Int("quantity", 1), it.Dec("unit_price"), it.Dec("line_total"), it.Str("discount_type", "none"),
					it.Dec("discount_value"), it.Dec("discount_amount"), final}
				if err := it.Err(); err != nil {
					return false, fmt.Errorf("item %d: %w", i, err)
				}
				if _, err := imp.u.Exec(ctx, line, args...); err != nil {
					return false, err
				}
			}
			return true, nil
		})
	}
}

func nullable(r Record, key string) any {
	if v := r.Str(key, ""); v != "" {
		return v
	}
	return nil
}

func (imp *importer) inventoryLog(ctx context.Context, rows []Record) {
	query := db.Insert("inventory_log", "sku", "action", "description", "old_value", "new_value", "qty_change", "created")
	imp.group(ctx, EntityInventoryLog, rows, func(ctx context.Context, rec Record) (bool, error) {
		r := checked(rec)
		args := []any{r.Str("sku", ""), r.Str("action", ""), r.Str("description", ""),
			r.Str("old_value", ""), r.Str("new_value", ""), r.Int("qty_change", 0), r.Str("created", imp.now)}
		if err := r.Err(); err != nil {
			return false, err
		}
		return imp.exec(ctx, query, args...)
	})
}

func (imp *importer) purchases(ctx context.Context, rows []Record) {
	query := db.Insert("purchases", "sku", "date", "supplier", "quantity", "cost_price", "selling_price",
		"total_cost", "invoice_number", "notes", "created")
	imp.group(ctx, EntityPurchases, rows, func(ctx context.Context, rec Record) (bool, error) {
		r := checked(rec)
		args := []any{r.Str("sku", ""), r.Str("date", imp.now[:10]), r.Str("supplier", ""),
			r.Int("quantity", 0), r.Dec("cost_price"), r.Dec("selling_price"), r.Dec("total_cost"),
			r.Str("invoice_number", ""), r.Str("notes", ""), r.Str("created", imp.now)}
		if err := r.Err(); err != nil {
			return false, err
		}
		return imp.exec(ctx, query, args...)
	})
}

// purchaseOrders remaps supplier ids by supplier name, since destination ids
// differ from the source.
func (imp *importer) purchaseOrders(ctx context.Context, rows []Record, sourceSuppliers []Record) error {
	imp.counts.merge(EntityPurchaseOrders, Tally{})
	sourceNames := make(map[int64]string, len(sourceSuppliers))
	for _, s := range sourceSuppliers {
		sourceNames[s.Int("id", 0)] = strings.TrimSpace(s.Str("name", ""))
	}
	dest, err := imp.u.Query(ctx, "SELECT id, name FROM suppliers")
	if err != nil {
		return fmt.Errorf("transfer: import purchase orders: %w", err)
	}
	destIDs := make(map[string]int64, len(dest))
	for _, r := range dest {
		destIDs[r.String("name")] = r.Int64("id")
	}

	header := db.InsertIgnore("purchase_orders", "order_number", "invoice_number", "supplier_id", "supplier_name",
		"order_date", "expected_date", "status", "notes", "total_amount", "received_date", "received_by",
		"receive_notes", "created", "last_updated")
	line := db.Insert("purchase_order_items", "order_id", "sku", "product_name", "quantity", "received_qty",
		"cost_price", "line_total")
	for _, rec := range rows {
		po := checked(rec)
		number := po.Str("order_number", "")
		imp.parent(ctx, EntityPurchaseOrders, number, func(ctx context.Context) (bool, error) {
			if number == "" {
				return false, shared.Validation("transfer: import purchase order", "order_number is required")
			}
			name := strings.TrimSpace(po.Str("supplier_name", ""))
			if name == "" {
				name = sourceNames[po.Int("supplier_id", 0)]
			}
			var supplierID any
			if id, ok := destIDs[name]; ok {
				supplierID = id
			}
			args := []any{number, po.Str("invoice_number", ""), supplierID, name,
				po.Str("order_date", imp.now[:10]), po.Str("expected_date", ""), po.Str("status", "draft"),
				po.Str("notes", ""), po.Dec("total_amount"), po.Str("received_date", ""), po.Str("received_by", ""),
				po.Str("receive_notes", ""), po.Str("created", imp.now), po.Str("last_updated", imp.now)}
			if err := po.Err(); err != nil {
				return false, err
			}
			res, err := imp.u.Exec(ctx, header, args...)
			if err != nil || res.RowsAffected == 0 {
				return false, err
			}
			for i, item := range po.Items() {
				it := checked(item)
				args := []any{res.LastInsertID, it.Str("sku", ""), it.Str("product_name", ""),
					it.Int("quantity", 0), it.Int("received_qty", 0), it.Dec("cost_price"), it.Dec("line_total")}
				if err := it.Err(); err != nil {
					return false, fmt.Errorf("item %d: %w", i, err)
				}
				if _, err := imp.u.Exec(ctx, line, args...); err != nil {
					return false, err
				}
			}
			return true, nil
		})
	}
	return nil
}

func (imp *importer) held(ctx context.Context, rows []Record) {
	query := db.InsertIgnore("held_transactions", "hold_id", "data", "held_at")
	imp.group(ctx, EntityHeld, rows, func(ctx context.Context, r Record) (bool, error) {
		id := r.Str("hold_id", "")
		if id == "" {
			return false, shared.Validation("transfer: import held", "hold_id is required")
		}
		return imp.exec(ctx, query, id, r.Str("data", "{}"), r.Str("held_at", imp.now))
	})
}
