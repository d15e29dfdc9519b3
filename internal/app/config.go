package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// DatabaseURL selects the client-server backend when it is a postgres URL.
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	SQLitePath     string        `envconfig:"SQLITE_PATH" default:"tillpoint.db"`
	DBBusyTimeout  time.Duration `envconfig:"DB_BUSY_TIMEOUT" default:"5s"`
	DBMaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`

	// RedisAddr is optional. Without it login throttling stays in memory and
	// background jobs are disabled.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	LoginMaxAttempts int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	LoginWindow      time.Duration `envconfig:"LOGIN_WINDOW" default:"15m"`
	HTTPRateLimit    int           `envconfig:"HTTP_RATE_LIMIT" default:"300"`

	BackupDir  string `envconfig:"BACKUP_DIR" default:"backups"`
	BackupKeep int    `envconfig:"BACKUP_KEEP" default:"10"`
	BackupCron string `envconfig:"BACKUP_CRON" default:"0 2 * * *"`

	CurrencySymbol string `envconfig:"CURRENCY_SYMBOL" default:"$"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return nil, errors.New("either DATABASE_URL or SQLITE_PATH must be set")
	}
	if cfg.BackupKeep < 1 {
		return nil, errors.New("BACKUP_KEEP must be at least 1")
	}
	return &cfg, nil
}

// DatabaseTarget returns the connection target handed to db.Open.
func (c *Config) DatabaseTarget() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
