package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Result reports the effect of a write.
type Result struct {
	RowsAffected int64
	LastInsertID int64
	hasInsertID  bool
}

// HasInsertID reports whether LastInsertID carries an engine assigned key.
func (r Result) HasInsertID() bool { return r.hasInsertID }

type columnSet struct {
	names []string
	index map[string]int
}

func newColumnSet(names []string) *columnSet {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		key := strings.ToLower(n)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return &columnSet{names: names, index: idx}
}

// Row is one fetched record addressable by column name or position.
type Row struct {
	cols *columnSet
	vals []any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	return Row{cols: newColumnSet(columns), vals: values}
}

// Columns returns the column names in select order.
func (r Row) Columns() []string {
	if r.cols == nil {
		return nil
	}
	return r.cols.names
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.vals) }

// Has reports whether the row carries the named column.
func (r Row) Has(name string) bool {
	if r.cols == nil {
		return false
	}
	_, ok := r.cols.index[strings.ToLower(name)]
	return ok
}

// Value returns the raw value of the named column, or nil when absent.
func (r Row) Value(name string) any {
	if r.cols == nil {
		return nil
	}
	i, ok := r.cols.index[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return r.vals[i]
}

// At returns the raw value at position i.
func (r Row) At(i int) any {
	if i < 0 || i >= len(r.vals) {
		return nil
	}
	return r.vals[i]
}

func (r Row) String(name string) string { return asString(r.Value(name)) }
func (r Row) Int64(name string) int64 { return asInt64(r.Value(name)) }
func (r Row) Int(name string) int { return int(asInt64(r.Value(name))) }
func (r Row) Decimal(name string) decimal.Decimal { return asDecimal(r.Value(name)) }
func (r Row) Bool(name string) bool { return asInt64(r.Value(name)) != 0 }

// IntAt returns the integer at position i.
func (r Row) IntAt(i int) int64 { return asInt64(r.At(i)) }

// StringAt returns the text at position i.
func (r Row) StringAt(i int) string { return asString(r.At(i)) }

// Map returns the row as column name to JSON friendly value.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.vals))
	for i, name := range r.Columns() {
		out[name] = normalize(r.vals[i])
	}
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return shared.Timestamp(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	default:
		return v
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return shared.Timestamp(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

func asDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(x)
	case int64:
		return decimal.NewFromInt(x)
	case int32:
		return decimal.NewFromInt(int64(x))
	case int:
		return decimal.NewFromInt(int64(x))
	case string, []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(asString(x)))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := newColumnSet(names)
	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = append([]byte(nil), b...)
			}
		}
		out = append(out, Row{cols: cols, vals: vals})
	}
	return out, rows.Err()
}
