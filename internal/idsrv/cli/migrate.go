package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/app"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", store.Store.ApplyMigrations),
		migrateStep("down", "Revert every applied migration, dropping all data", store.Store.RollbackMigrations),
	)
	return cmd
}

func migrateStep(use, short string, step func(store.Store) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := step(db); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok (%s)\n", use, cfg.DatabaseDriver)
			return nil
		},
	}
}
