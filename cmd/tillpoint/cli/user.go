package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tillpoint/tillpoint/internal/app"
	"github.com/tillpoint/tillpoint/internal/auth"
)

// NewUserCommand groups user management commands.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	var input auth.CreateUserInput
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user; the password is read from stdin when --password is omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Username = args[0]
			if input.Password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				input.Password = strings.TrimRight(line, "\r\n")
			}
			return withServices(cmd, rootOpts, func(ctx context.Context, svc *app.Services) error {
				user, err := svc.Auth.CreateUser(ctx, input)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Username, user.Role, user.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&input.Password, "password", "", "password (prefer stdin)")
	cmd.Flags().StringVar(&input.Name, "name", "", "display name")
	cmd.Flags().StringVar(&input.Role, "role", "staff", "admin, manager or staff")
	cmd.Flags().StringVar(&input.Phone, "phone", "", "phone number")
	return cmd
}
