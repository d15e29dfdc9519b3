package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tillpoint/tillpoint/internal/auth"
	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/masterdata/customers"
	"github.com/tillpoint/tillpoint/internal/masterdata/suppliers"
	"github.com/tillpoint/tillpoint/internal/observability"
	"github.com/tillpoint/tillpoint/internal/platform/cache"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/platform/migrate"
	"github.com/tillpoint/tillpoint/internal/procurement"
	"github.com/tillpoint/tillpoint/internal/ratelimit"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/settings"
	"github.com/tillpoint/tillpoint/internal/transfer"
	"github.com/tillpoint/tillpoint/jobs"
)

// Services holds every domain service built on one database.
type Services struct {
	Config  *Config
	Logger  *slog.Logger
	Manager *db.Manager
	Redis   *redis.Client
	Metrics *observability.Metrics

	Auth        *auth.Service
	Inventory   *inventory.Service
	Sales       *sales.Service
	Procurement *procurement.Service
	Suppliers   *suppliers.Service
	Customers   *customers.Service
	Settings    *settings.Store
	Transfer    *transfer.Service
	Backup      *jobs.BackupJob
}

// OpenDatabase connects to the configured backend.
func OpenDatabase(ctx context.Context, cfg *Config, logger *slog.Logger) (*db.Manager, error) {
	m, err := db.Open(ctx, db.Options{
		Target:       cfg.DatabaseTarget(),
		BusyTimeout:  cfg.DBBusyTimeout,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	logger.Info("database opened", slog.String("backend", m.Backend().String()))
	return m, nil
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, cfg *Config, m *db.Manager, logger *slog.Logger) (migrate.Report, error) {
	return migrate.New(m, logger, migrate.WithCurrencySymbol(cfg.CurrencySymbol)).Run(ctx)
}

// NewServices opens the database and optional Redis connection and builds
// all services on top of them. Close releases both.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	m, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return Build(cfg, logger, m, rdb, observability.NewMetrics()), nil
}

// Build wires services onto existing connections. rdb may be nil.
func Build(cfg *Config, logger *slog.Logger, m *db.Manager, rdb *redis.Client, metrics *observability.Metrics) *Services {
	policy := ratelimit.Policy{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginWindow}
	var limiter ratelimit.Limiter = ratelimit.NewMemory(policy)
	if rdb != nil {
		limiter = ratelimit.NewRedis(rdb, policy)
	}

	transferService := transfer.NewService(m, logger)
	return &Services{
		Config:  cfg,
		Logger:  logger,
		Manager: m,
		Redis:   rdb,
		Metrics: metrics,

		Auth:        auth.NewService(auth.NewRepository(m), limiter, logger),
		Inventory:   inventory.NewService(inventory.NewRepository(m, logger), logger, metrics),
		Sales:       sales.NewService(sales.NewRepository(m, logger), logger, metrics),
		Procurement: procurement.NewService(procurement.NewRepository(m, logger), logger, metrics),
		Suppliers:   suppliers.NewService(suppliers.NewRepository(m)),
		Customers:   customers.NewService(customers.NewRepository(m)),
		Settings:    settings.NewStore(m, logger),
		Transfer:    transferService,
		Backup: jobs.NewBackupJob(jobs.BackupConfig{
			Manager:  m,
			Transfer: transferService,
			Dir:      cfg.BackupDir,
			Keep:     cfg.BackupKeep,
			Logger:   logger,
			Observer: metrics,
		}),
	}
}

// Close releases the database and Redis connections.
func (s *Services) Close() error {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	return s.Manager.Close()
}
