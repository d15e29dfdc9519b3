package transfer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// FormatVersion identifies the snapshot layout.
const FormatVersion = 1

// Entity names used in Counts.
const (
	EntityUsers          = "users"
	EntitySettings       = "settings"
	EntityInventory      = "inventory"
	EntitySuppliers      = "suppliers"
	EntityCustomers      = "customers"
	EntitySales          = "sales"
	EntityInventoryLog   = "inventory_log"
	EntityPurchases      = "purchases"
	EntityPurchaseOrders = "purchase_orders"
	EntityHeld           = "held_transactions"
)

// Record is one exported row keyed by column name. Sales and purchase
// orders carry their lines under "items".
type Record map[string]any

// Snapshot is the full portable content of a database.
type Snapshot struct {
	Format           int            `json:"format"`
	ExportedAt       string         `json:"exported_at"`
	Backend          string         `json:"backend"`
	Users            []Record       `json:"users"`
	Settings         map[string]any `json:"settings"`
	Inventory        []Record       `json:"inventory"`
	Suppliers        []Record       `json:"suppliers"`
	Customers        []Record       `json:"customers"`
	Sales            []Record       `json:"sales"`
	InventoryLog     []Record       `json:"inventory_log"`
	Purchases        []Record       `json:"purchases"`
	PurchaseOrders   []Record       `json:"purchase_orders"`
	HeldTransactions []Record       `json:"held_transactions"`
}

// Tally counts rows written and rows skipped for one entity.
type Tally struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Counts reports an import per entity.
type Counts map[string]Tally

func (c Counts) merge(entity string, t Tally) {
	cur := c[entity]
	cur.Imported += t.Imported
	cur.Skipped += t.Skipped
	c[entity] = cur
}

// Str returns the value at key as text, or fallback when absent or null.
func (r Record) Str(key, fallback string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return fallback
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ParseInt returns the value at key as an integer. Absent and null values
// yield fallback; anything that is not a number is an error.
func (r Record) ParseInt(key string, fallback int64) (int64, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		if f, err := x.Float64(); err == nil {
			return int64(f), nil
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return fallback, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
	}
	return fallback, shared.Validation("transfer: field "+key, "%q is not a number", r.Str(key, ""))
}

// ParseDec returns the value at key as money. Absent and null values are zero.
func (r Record) ParseDec(key string) (decimal.Decimal, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return decimal.Zero, nil
	}
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case decimal.Decimal:
		return x, nil
	}
	text := strings.TrimSpace(r.Str(key, ""))
	if text == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, shared.Validation("transfer: field "+key, "%q is not an amount", text)
	}
	return d, nil
}

// Int is ParseInt with malformed values replaced by fallback.
func (r Record) Int(key string, fallback int64) int64 {
	n, err := r.ParseInt(key, fallback)
	if err != nil {
		return fallback
	}
	return n
}

// Dec is ParseDec with malformed values replaced by zero.
func (r Record) Dec(key string) decimal.Decimal {
	d, _ := r.ParseDec(key)
	return d
}

// fields reads the numeric columns of one imported row and keeps the first
// malformed value, so the row fails instead of storing a default.
type fields struct {
	Record
	err error
}

func checked(r Record) *fields { return &fields{Record: r} }

func (f *fields) Int(key string, fallback int64) int64 {
	n, err := f.ParseInt(key, fallback)
	if err != nil && f.err == nil {
		f.err = err
	}
	return n
}

func (f *fields) Dec(key string) decimal.Decimal {
	d, err := f.ParseDec(key)
	if err != nil && f.err == nil {
		f.err = err
	}
	return d
}

func (f *fields) Err() error { return f.err }

// Active interprets the legacy spellings of a boolean flag.
func (r Record) Active(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return true
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s == "1" || s == "true"
	default:
		return r.Int(key, 1) != 0
	}
}

// Items returns the nested line records.
func (r Record) Items() []Record {
	switch x := r["items"].(type) {
	case []Record:
		return x
	case []map[string]any:
		out := make([]Record, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	case []any:
		out := make([]Record, 0, len(x))
		for _, v := range x {
			if m, ok := v.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
