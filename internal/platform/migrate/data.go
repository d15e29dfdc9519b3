package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// legacyCurrencyAliases are case-folded spellings replaced by the configured symbol.
var legacyCurrencyAliases = map[string]bool{"rs": true, "rs.": true, "inr": true}

// skuChildren reference inventory.sku and move before their owner.
var skuChildren = []string{"sale_items", "inventory_log", "purchase_order_items", "purchases"}

const legacySKUPrefix = "NLF-"

func (m *Migrator) backfillBarcodes(ctx context.Context, u *db.Unit) error {
	rows, err := u.Query(ctx, "SELECT sku, barcode FROM inventory ORDER BY sku")
	if err != nil {
		return err
	}
	used := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if code := r.String("barcode"); shared.IsSixDigit(code) {
			used[code] = struct{}{}
		}
	}
	kept := make(map[string]bool, len(rows))
	assigned := 0
	for _, r := range rows {
		code := r.String("barcode")
		if shared.IsSixDigit(code) && !kept[code] {
			kept[code] = true
			continue
		}
		fresh, err := shared.UniqueSixDigit(used)
		if err != nil {
			return err
		}
		if _, err := u.Exec(ctx, "UPDATE inventory SET barcode = ? WHERE sku = ?", fresh, r.String("sku")); err != nil {
			return err
		}
		assigned++
	}
	if assigned > 0 {
		m.logger.Info("barcodes assigned", slog.Int("count", assigned))
	}
	_, err = u.Exec(ctx, "CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_barcode ON inventory(barcode)")
	return err
}

func (m *Migrator) normalizeCurrency(ctx context.Context, u *db.Unit) error {
	row, err := u.QueryRow(ctx, "SELECT value FROM settings WHERE key = ?", "currency_symbol")
	if errors.Is(err, db.ErrNoRows) {
		_, err = u.Exec(ctx, db.Upsert("settings", "key", "value"), "currency_symbol", m.currency)
		return err
	}
	if err != nil {
		return err
	}
	folded := cases.Fold().String(strings.TrimSpace(row.String("value")))
	if !legacyCurrencyAliases[folded] {
		return nil
	}
	_, err = u.Exec(ctx, "UPDATE settings SET value = ? WHERE key = ?", m.currency, "currency_symbol")
	return err
}

// rekeyLegacySKUs moves NLF- prefixed SKUs to random six digit codes. A child
// table that cannot be updated is logged and skipped; a product row that
// cannot move fails the step so it retries on the next start.
func (m *Migrator) rekeyLegacySKUs(ctx context.Context, u *db.Unit) error {
	legacy, err := u.Query(ctx, "SELECT sku FROM inventory WHERE sku LIKE ?", legacySKUPrefix+"%")
	if err != nil || len(legacy) == 0 {
		return err
	}
	all, err := u.Query(ctx, "SELECT sku FROM inventory")
	if err != nil {
		return err
	}
	used := make(map[string]struct{}, len(all))
	for _, r := range all {
		used[r.String("sku")] = struct{}{}
	}
	if _, err := u.Exec(ctx, u.Dialect().DeferConstraints()); err != nil {
		return err
	}

	now := shared.Timestamp(m.now())
	var stuck []string
	for _, r := range legacy {
		oldSKU := r.String("sku")
		newSKU, err := shared.UniqueSixDigit(used)
		if err != nil {
			return err
		}
		err = u.Savepoint(ctx, "rekey", func(ctx context.Context) error {
			for _, table := range skuChildren {
				err := u.Savepoint(ctx, "rekey_child", func(ctx context.Context) error {
					_, err := u.Exec(ctx, fmt.Sprintf("UPDATE %s SET sku = ? WHERE sku = ?", table), newSKU, oldSKU)
					return err
				})
				if err != nil {
					m.logger.Warn("rekey child table skipped",
						slog.String("table", table),
						slog.String("sku", oldSKU),
						slog.Any("error", err))
				}
			}
			_, err := u.Exec(ctx, "UPDATE inventory SET sku = ?, last_updated = ? WHERE sku = ?", newSKU, now, oldSKU)
			return err
		})
		if err != nil {
			m.logger.Warn("legacy sku left unchanged",
				slog.String("sku", oldSKU),
				slog.Any("error", err))
			stuck = append(stuck, oldSKU)
		}
	}
	m.logger.Info("legacy skus rekeyed", slog.Int("moved", len(legacy)-len(stuck)), slog.Int("found", len(legacy)))
	if len(stuck) > 0 {
		return fmt.Errorf("rekey: %d legacy skus left unchanged: %s", len(stuck), strings.Join(stuck, ", "))
	}
	return nil
}

func (m *Migrator) seedSuppliers(ctx context.Context, u *db.Unit) error {
	n, err := u.Count(ctx, "SELECT COUNT(*) FROM suppliers")
	if err != nil || n > 0 {
		return err
	}
	rows, err := u.Query(ctx, "SELECT DISTINCT supplier FROM inventory WHERE supplier IS NOT NULL AND supplier != '' ORDER BY supplier")
	if err != nil {
		return err
	}
	now := shared.Timestamp(m.now())
	for _, r := range rows {
		name := strings.TrimSpace(r.String("supplier"))
		if name == "" {
			continue
		}
		if _, err := u.Exec(ctx, db.InsertIgnore("suppliers", "name", "created", "last_updated"), name, now, now); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) seedCustomers(ctx context.Context, u *db.Unit) error {
	n, err := u.Count(ctx, "SELECT COUNT(*) FROM customers")
	if err != nil || n > 0 {
		return err
	}
	rows, err := u.Query(ctx, `SELECT customer_phone AS phone, MAX(customer_name) AS name, MAX(customer_email) AS email
		FROM sales WHERE customer_phone IS NOT NULL AND customer_phone != ''
		GROUP BY customer_phone ORDER BY customer_phone`)
	if err != nil {
		return err
	}
	now := shared.Timestamp(m.now())
	for _, r := range rows {
		if _, err := u.Exec(ctx, db.InsertIgnore("customers", "name", "phone", "email", "created", "last_updated"),
			r.String("name"), r.String("phone"), r.String("email"), now, now); err != nil {
			return err
		}
	}
	return nil
}
