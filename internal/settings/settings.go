// Package settings stores shop-wide key/value configuration.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Known keys.
const (
	KeyCurrencySymbol = "currency_symbol"
	KeyShopName       = "shop_name"
	KeyTaxRate        = "tax_rate"
	KeyReceiptFooter  = "receipt_footer"
)

// Store reads and writes the settings table.
type Store struct {
	manager *db.Manager
	logger  *slog.Logger
}

// NewStore constructs a settings store.
func NewStore(manager *db.Manager, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{manager: manager, logger: logger}
}

// Get returns the value stored under key, or fallback when unset.
func (s *Store) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, "SELECT value FROM settings WHERE key = ?", key)
		if errors.Is(err, db.ErrNoRows) {
			value = fallback
			return nil
		}
		if err != nil {
			return err
		}
		value = row.String("value")
		return nil
	})
	return value, err
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return shared.Validation("settings: set", "key is required")
	}
	return s.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		_, err := u.Exec(ctx, db.Upsert("settings", "key", "value"), key, value)
		return err
	})
}

// SetMany stores every pair in one transaction.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	for key := range values {
		if strings.TrimSpace(key) == "" {
			return shared.Validation("settings: set many", "key is required")
		}
	}
	err := s.manager.InTx(ctx, func(ctx context.Context, u *db.Unit) error {
		for key, value := range values {
			if _, err := u.Exec(ctx, db.Upsert("settings", "key", "value"), strings.TrimSpace(key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info("settings updated", slog.Int("keys", len(values)))
	}
	return err
}

// All returns every stored setting.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := s.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, "SELECT key, value FROM settings ORDER BY key")
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.String("key")] = r.String("value")
		}
		return nil
	})
	return out, err
}
