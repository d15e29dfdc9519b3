package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Backend identifies the storage engine behind a Manager.
type Backend int

const (
	// Embedded is the single-file SQLite engine.
	Embedded Backend = iota
	// ClientServer is PostgreSQL reached over the network.
	ClientServer
)

func (b Backend) String() string {
	switch b {
	case Embedded:
		return "embedded"
	case ClientServer:
		return "client-server"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// BackendFor picks ClientServer for postgres URLs and Embedded otherwise.
func BackendFor(databaseURL string) Backend {
	lower := strings.ToLower(strings.TrimSpace(databaseURL))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return ClientServer
	}
	return Embedded
}

// Dialect captures everything that differs between the two engines.
type Dialect interface {
	Backend() Backend
	DriverName() string
	// DSN turns a file path or URL into a driver connection string.
	DSN(target string, busyTimeout time.Duration) string
	Translate(query string) Translation
	TxOptions() *sql.TxOptions
	SerialPrimaryKey() string
	// ForeignKeyMode is appended to REFERENCES clauses.
	ForeignKeyMode() string
	DeferConstraints() string
	// ColumnExistsQuery takes (table, column) and yields one count column.
	ColumnExistsQuery() string
}

// DialectFor returns the dialect of b.
func DialectFor(b Backend) Dialect {
	if b == ClientServer {
		return clientServer{}
	}
	return embedded{}
}

type embedded struct{}

func (embedded) Backend() Backend   { return Embedded }
func (embedded) DriverName() string { return "sqlite3" }

func (embedded) DSN(target string, busyTimeout time.Duration) string {
	path := strings.TrimPrefix(target, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	// go-sqlite3 applies these on every new connection.
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", fmt.Sprintf("%d", busyTimeout.Milliseconds()))
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

func (embedded) Translate(query string) Translation {
	return translate(Embedded, query)
}

func (embedded) TxOptions() *sql.TxOptions { return nil }

func (embedded) SerialPrimaryKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (embedded) ForeignKeyMode() string   { return "" }
func (embedded) DeferConstraints() string { return "PRAGMA defer_foreign_keys = ON" }

func (embedded) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
}

type clientServer struct{}

func (clientServer) Backend() Backend   { return ClientServer }
func (clientServer) DriverName() string { return "pgx" }

func (clientServer) DSN(target string, _ time.Duration) string { return target }

func (clientServer) Translate(query string) Translation {
	return translate(ClientServer, query)
}

func (clientServer) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

func (clientServer) SerialPrimaryKey() string { return "SERIAL PRIMARY KEY" }
func (clientServer) ForeignKeyMode() string   { return " DEFERRABLE INITIALLY IMMEDIATE" }
func (clientServer) DeferConstraints() string { return "SET CONSTRAINTS ALL DEFERRED" }

func (clientServer) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?"
}
