package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voice-bridge/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer db.Close()
				if err := store.Migrate(cmd.Context(), db); err != nil {
					return err
				}
				v, err := store.Version(cmd.Context(), db)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
				return err
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer db.Close()
				return store.Status(cmd.Context(), db)
			},
		},
	)
	return cmd
}
