package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tillpoint/tillpoint/internal/app"
	"github.com/tillpoint/tillpoint/jobs"
)

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped backup into BACKUP_DIR and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case jobs.FormatAuto, jobs.FormatSQLite, jobs.FormatSnapshot:
			default:
				return fmt.Errorf("invalid format %q: must be sqlite or json", format)
			}
			return withServices(cmd, rootOpts, func(ctx context.Context, svc *app.Services) error {
				path, err := svc.Backup.Run(ctx, format)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "sqlite or json (default picks by backend)")
	return cmd
}
