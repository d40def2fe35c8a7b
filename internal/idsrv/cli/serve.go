package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/app"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
)

func newServeCommand() *cobra.Command {
	var (
		seed     bool
		seedFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if seedFile == "" {
				seedFile = cfg.SeedFile
			}

			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if seed || seedFile != "" {
				data, err := readSeed(seedFile)
				if err != nil {
					_ = application.Close()
					return err
				}
				if err := seedFailures(application.Seed(cmd.Context(), data)); err != nil {
					// Partially seeded data is still usable; keep serving.
					application.Logger().Warn("seeding incomplete", "error", err)
				}
			}

			return application.Run()
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "provision the demo clients and users before serving")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "provision clients and users from a YAML file (default $AUTH_SEED_FILE)")
	return cmd
}

// readSeed loads path, or returns nil for the built-in demo data.
func readSeed(path string) (*service.SeedData, error) {
	if path == "" {
		return nil, nil
	}
	data, err := service.LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func seedFailures(results []service.ProvisionResult) error {
	var errs []error
	for _, res := range results {
		if res.Outcome == service.ProvisionFailed {
			errs = append(errs, fmt.Errorf("%s %s: %s", res.Kind, res.Name, res.Reason))
		}
	}
	return errors.Join(errs...)
}
