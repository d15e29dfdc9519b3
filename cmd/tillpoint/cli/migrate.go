package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tillpoint/tillpoint/internal/app"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd, rootOpts)
			if err != nil {
				return err
			}
			m, err := app.OpenDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer m.Close()
			report, err := app.Migrate(cmd.Context(), cfg, m, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend: %s\n", m.Backend())
			fmt.Fprintf(out, "schema version: %d\n", report.Current)
			fmt.Fprintf(out, "applied: %v\n", report.Applied)
			if len(report.Failed) > 0 {
				fmt.Fprintf(out, "failed (skipped): %v\n", report.Failed)
			}
			return nil
		},
	}
}
