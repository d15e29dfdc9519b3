// Package migrate brings a database of any age up to the current schema.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// advisoryLockKey serialises migration runs across client-server nodes.
const advisoryLockKey = 7305211

// DefaultCurrencySymbol is written when no currency symbol is configured.
const DefaultCurrencySymbol = "₹"

// Step is one versioned migration. Steps must be idempotent.
type Step struct {
	Version int
	Name    string
	// Soft steps log and stay unrecorded on failure so they retry next start.
	Soft  bool
	Apply func(ctx context.Context, u *db.Unit) error
}

// Report summarises one Run.
type Report struct {
	Applied []int
	Failed  []int
	Current int
}

// Migrator applies the versioned step list.
type Migrator struct {
	manager  *db.Manager
	logger   *slog.Logger
	currency string
	now      func() time.Time
	steps    []Step
}

// Option customises a Migrator.
type Option func(*Migrator)

// WithCurrencySymbol overrides the default currency symbol.
func WithCurrencySymbol(symbol string) Option {
	return func(m *Migrator) {
		if symbol != "" {
			m.currency = symbol
		}
	}
}

// WithClock overrides the time source used for seeded rows.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

// WithSteps replaces the step list.
func WithSteps(steps ...Step) Option {
	return func(m *Migrator) { m.steps = steps }
}

// New constructs a Migrator with the standard step list.
func New(manager *db.Manager, logger *slog.Logger, opts ...Option) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Migrator{manager: manager, logger: logger, currency: DefaultCurrencySymbol, now: time.Now}
	m.steps = m.standardSteps()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Steps returns the configured step list.
func (m *Migrator) Steps() []Step { return m.steps }

func (m *Migrator) standardSteps() []Step {
	return []Step{
		{Version: 1, Name: "base schema", Apply: m.createBaseSchema},
		{Version: 2, Name: "sales void columns", Apply: m.addVoidColumns},
		{Version: 3, Name: "purchase order invoice number", Apply: m.addInvoiceNumber},
		{Version: 4, Name: "inventory barcode column", Apply: m.addBarcodeColumn},
		{Version: 5, Name: "barcode backfill", Soft: true, Apply: m.backfillBarcodes},
		{Version: 6, Name: "currency symbol", Soft: true, Apply: m.normalizeCurrency},
		{Version: 7, Name: "legacy sku rekey", Soft: true, Apply: m.rekeyLegacySKUs},
		{Version: 8, Name: "seed suppliers", Soft: true, Apply: m.seedSuppliers},
		{Version: 9, Name: "seed customers", Soft: true, Apply: m.seedCustomers},
	}
}

// Run applies every pending step. Each step re-checks schema_migrations inside
// its own transaction, so processes migrating the same database at startup
// apply it once. On the client-server backend a session advisory lock also
// serialises whole runs.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	var report Report
	err := m.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		if u.Backend() == db.ClientServer {
			if _, err := u.Exec(ctx, "SELECT pg_advisory_lock(?)", advisoryLockKey); err != nil {
				return fmt.Errorf("migrate: advisory lock: %w", err)
			}
			defer func() {
				if _, err := u.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(?)", advisoryLockKey); err != nil {
					m.logger.Warn("advisory unlock failed", slog.Any("error", err))
				}
			}()
		}

		if _, err := u.Exec(ctx, migrationsTable); err != nil {
			return fmt.Errorf("migrate: create schema_migrations: %w", err)
		}
		applied, err := appliedVersions(ctx, u)
		if err != nil {
			return err
		}

		for _, step := range m.steps {
			if applied[step.Version] {
				continue
			}
			concurrent := false
			err := u.InTx(ctx, func(ctx context.Context) error {
				// Another process may have applied the step since the applied set was read.
				n, err := u.Count(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", step.Version)
				if err != nil {
					return err
				}
				if n > 0 {
					concurrent = true
					return nil
				}
				if err := step.Apply(ctx, u); err != nil {
					return err
				}
				_, err = u.Exec(ctx, db.InsertIgnore("schema_migrations", "version", "name", "applied_at"),
					step.Version, step.Name, shared.Timestamp(m.now()))
				return err
			})
			if err != nil {
				if step.Soft {
					m.logger.Warn("migration step failed, will retry on next start",
						slog.Int("version", step.Version),
						slog.String("name", step.Name),
						slog.Any("error", err))
					report.Failed = append(report.Failed, step.Version)
					continue
				}
				return fmt.Errorf("migrate: step %d (%s): %w", step.Version, step.Name, err)
			}
			applied[step.Version] = true
			if concurrent {
				m.logger.Info("migration already applied elsewhere", slog.Int("version", step.Version))
				continue
			}
			m.logger.Info("migration applied", slog.Int("version", step.Version), slog.String("name", step.Name))
			report.Applied = append(report.Applied, step.Version)
		}

		for v := range applied {
			if v > report.Current {
				report.Current = v
			}
		}
		return nil
	})
	return report, err
}

func appliedVersions(ctx context.Context, u *db.Unit) (map[int]bool, error) {
	rows, err := u.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	out := make(map[int]bool, len(rows))
	for _, r := range rows {
		out[r.Int("version")] = true
	}
	return out, nil
}

// AddColumnIfMissing adds column to table unless it already exists.
func AddColumnIfMissing(ctx context.Context, u *db.Unit, table, column, decl string) error {
	n, err := u.Count(ctx, u.Dialect().ColumnExistsQuery(), table, column)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = u.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

func (m *Migrator) createBaseSchema(ctx context.Context, u *db.Unit) error {
	for _, ddl := range baseTables {
		if _, err := u.Exec(ctx, render(u.Dialect(), ddl)); err != nil {
			return err
		}
	}
	for _, ddl := range baseIndexes {
		if _, err := u.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) addVoidColumns(ctx context.Context, u *db.Unit) error {
	cols := []struct{ name, decl string }{
		{"status", "TEXT DEFAULT 'Complete'"},
		{"voided_at", "TEXT"},
		{"voided_by", "TEXT"},
		{"void_reason", "TEXT"},
	}
	for _, c := range cols {
		if err := AddColumnIfMissing(ctx, u, "sales", c.name, c.decl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) addInvoiceNumber(ctx context.Context, u *db.Unit) error {
	return AddColumnIfMissing(ctx, u, "purchase_orders", "invoice_number", "TEXT DEFAULT ''")
}

func (m *Migrator) addBarcodeColumn(ctx context.Context, u *db.Unit) error {
	return AddColumnIfMissing(ctx, u, "inventory", "barcode", "TEXT")
}

// ErrNoSteps is returned by Latest when no steps are configured.
var ErrNoSteps = errors.New("migrate: no steps configured")

// Latest returns the highest configured version.
func (m *Migrator) Latest() (int, error) {
	if len(m.steps) == 0 {
		return 0, ErrNoSteps
	}
	latest := 0
	for _, s := range m.steps {
		if s.Version > latest {
			latest = s.Version
		}
	}
	return latest, nil
}
