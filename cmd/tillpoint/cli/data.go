package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tillpoint/tillpoint/internal/app"
	"github.com/tillpoint/tillpoint/internal/transfer"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every table as a JSON snapshot (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, rootOpts, func(ctx context.Context, svc *app.Services) error {
				if len(args) == 0 || args[0] == "-" {
					return svc.Transfer.WriteJSON(ctx, cmd.OutOrStdout())
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := svc.Transfer.WriteJSON(ctx, f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON snapshot, skipping rows that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := transfer.ReadJSON(f)
			if err != nil {
				return err
			}
			return withServices(cmd, rootOpts, func(ctx context.Context, svc *app.Services) error {
				counts, err := svc.Transfer.Import(ctx, snap)
				if err != nil {
					return err
				}
				return printCounts(cmd.OutOrStdout(), counts, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print counts as JSON")
	return cmd
}

func printCounts(w io.Writer, counts transfer.Counts, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := counts[name]
		if _, err := fmt.Fprintf(w, "%-18s imported=%d skipped=%d\n", name, c.Imported, c.Skipped); err != nil {
			return err
		}
	}
	return nil
}
