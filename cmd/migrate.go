package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/university-rankings/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			dsn := appInstance.GetConfig().DB.DSN
			if dsn == "" {
				return errors.New("db.dsn is required to run migrations")
			}
			dir, label := postgres.Up, "up"
			if down {
				dir, label = postgres.Down, "down"
			}
			if err := postgres.Migrate(dsn, dir, appInstance.GetLogger()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", label)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back")
	return cmd
}
