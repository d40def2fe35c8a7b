package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/app"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

func newSeedCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision clients and users without starting the server",
		Long: `Provision clients and users into the configured store. Existing clients
and users are left untouched, so seeding can be repeated safely. Without
--file the demo clients "client" and "ro.client" and the users alice and
bob are created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.SeedFile
			}

			data := service.DefaultSeed()
			if file != "" {
				if data, err = service.LoadSeedFile(file); err != nil {
					return err
				}
			}

			db, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.ApplyMigrations(); err != nil {
				return fmt.Errorf("failed to apply database migrations: %w", err)
			}

			credentials, err := app.NewCredentialService(cfg, db, nil)
			if err != nil {
				return err
			}

			ctx := slogx.WithContext(cmd.Context(), app.NewLogger(cfg))
			results := credentials.Seed(ctx, data)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tNAME\tRESULT\tREASON")
			for _, res := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Kind, res.Name, res.Outcome, res.Reason)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			return seedFailures(results)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (default $AUTH_SEED_FILE, else the demo data)")
	return cmd
}
