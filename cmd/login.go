package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/auth"
	"github.com/tuxqa/tuxqa/internal/tui"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check credentials against the configured users",
		Example: `  tuxqa login --user admin
  tuxqa login --oauth github --user alice@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			if oauthFlag == "" && len(cfg.Auth.Users) == 0 {
				return errors.New("no users configured; add auth.users to the config (see `tuxqa hash-password`)")
			}
			// Force the password prompt even when auth.required is off.
			cfg.Auth.Required = true

			user, err := authenticate(cmd.Context(), cfg, tui.NewPlainIO(false))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (role: %s, via %s)\n",
				user.Identifier, user.Metadata.Role, user.Metadata.Provider)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for auth.users[].password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := tui.NewPlainIO(false)
			pw, err := ui.ReadSecret("Password: ")
			if err != nil {
				return err
			}
			again, err := ui.ReadSecret("Repeat password: ")
			if err != nil {
				return err
			}
			if pw != again {
				return errors.New("passwords do not match")
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
