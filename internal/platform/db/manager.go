package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Options configures Open.
type Options struct {
	// Target is a postgres URL or a SQLite file path.
	Target       string
	BusyTimeout  time.Duration
	MaxOpenConns int
	Logger       *slog.Logger
}

// Manager owns the connection pool of one backend and hands out units of work.
type Manager struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the backend selected by opts.Target and verifies it with a ping.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if strings.TrimSpace(opts.Target) == "" {
		return nil, fmt.Errorf("platform/db: empty database target")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dialect := DialectFor(BackendFor(opts.Target))
	if dialect.Backend() == Embedded {
		dir := filepath.Dir(strings.TrimPrefix(opts.Target, "file:"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("platform/db: create data dir: %w", err)
		}
	}

	handle, err := sql.Open(dialect.DriverName(), dialect.DSN(opts.Target, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("platform/db: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		handle.SetMaxOpenConns(opts.MaxOpenConns)
		handle.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return &Manager{db: handle, dialect: dialect, logger: opts.Logger}, nil
}

// Close closes the pool.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Dialect returns the backend dialect.
func (m *Manager) Dialect() Dialect { return m.dialect }

// Backend returns the backend kind.
func (m *Manager) Backend() Backend { return m.dialect.Backend() }

// Ping checks the pool is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// NewUnit returns a unit of work that has not yet acquired a connection.
func (m *Manager) NewUnit() *Unit {
	return &Unit{m: m}
}

// Run executes fn with the unit carried by ctx, or with a fresh unit that is
// released when fn returns or panics.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error {
	if u, ok := UnitFromContext(ctx); ok && u.m == m {
		return fn(ctx, u)
	}
	u := m.NewUnit()
	defer u.Release()
	return fn(WithUnit(ctx, u), u)
}

// InTx runs fn inside a transaction on the context unit, committing on success.
func (m *Manager) InTx(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error {
	return m.Run(ctx, func(ctx context.Context, u *Unit) error {
		return u.InTx(ctx, func(ctx context.Context) error {
			return fn(ctx, u)
		})
	})
}

type unitContextKey struct{}

// WithUnit stores u in ctx.
func WithUnit(ctx context.Context, u *Unit) context.Context {
	return context.WithValue(ctx, unitContextKey{}, u)
}

// UnitFromContext extracts the unit stored by WithUnit.
func UnitFromContext(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitContextKey{}).(*Unit)
	return u, ok && u != nil
}
