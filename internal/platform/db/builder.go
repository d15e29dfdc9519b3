package db

import "strings"

// Insert renders INSERT INTO table (cols) VALUES (?, ...).
func Insert(table string, cols ...string) string {
	return renderInsert("INSERT", table, cols)
}

// InsertIgnore renders an insert that silently skips rows violating a unique key.
func InsertIgnore(table string, cols ...string) string {
	return renderInsert("INSERT OR IGNORE", table, cols)
}

// Upsert renders an insert that replaces the row keyed by the first column.
func Upsert(table string, cols ...string) string {
	return renderInsert("INSERT OR REPLACE", table, cols)
}

// Placeholders returns n comma separated parameter markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func renderInsert(verb, table string, cols []string) string {
	var b strings.Builder
	b.WriteString(verb)
	b.WriteString(" INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(Placeholders(len(cols)))
	b.WriteString(")")
	return b.String()
}
