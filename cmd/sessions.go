package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/cost"
	"github.com/tuxqa/tuxqa/internal/session"
	"github.com/tuxqa/tuxqa/internal/tui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show or delete saved chat sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions, newest first",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, store session.Store, _ []string) error {
				infos, err := store.List()
				if err != nil {
					return err
				}
				tui.WriteSessionTable(cmd.OutOrStdout(), infos)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Print a saved session transcript",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store session.Store, args []string) error {
				s, err := store.Load(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session %s  profile=%s", s.ID, s.Profile)
				if s.User != "" {
					fmt.Fprintf(out, "  user=%s", s.User)
				}
				fmt.Fprintf(out, "\nCreated %s, updated %s\n",
					s.CreatedAt.Local().Format("2006-01-02 15:04"), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintf(out, "Tokens %d, cost %s\n\n", s.TokensUsed, cost.FormatDollars(s.TotalCost))
				fmt.Fprintln(out, s.History.Transcript())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store session.Store, args []string) error {
				if err := store.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s.\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

// withStore opens the session store around fn.
func withStore(fn func(cmd *cobra.Command, store session.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := initConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, store, args)
	}
}
