// Package cli implements the tillpoint command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tillpoint/tillpoint/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Verbose bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "tillpoint",
		Short:         "Point of sale persistence core",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.EnvFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))

	return cmd
}

// loadEnvFile reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadRuntime loads configuration and a logger writing to the command's stderr.
// Logging is discarded unless --verbose is set, so stdout stays clean for
// export output.
func loadRuntime(cmd *cobra.Command, opts *RootOptions) (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = app.NewLoggerTo(cfg, cmd.ErrOrStderr())
	}
	return cfg, logger, nil
}

// withServices opens the database, migrates it and builds the services for
// the duration of fn.
func withServices(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, svc *app.Services) error) error {
	cfg, logger, err := loadRuntime(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()
	if _, err := app.Migrate(ctx, cfg, svc.Manager, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return fn(ctx, svc)
}
