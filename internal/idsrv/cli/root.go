// Package cli implements the idsrv command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/app"
)

// NewRootCommand builds the idsrv command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "idsrv",
		Short: "idsrv is a minimal OAuth2 / OpenID Connect token service",
		Long: `idsrv issues signed JWT access tokens for the password, client_credentials
and refresh_token grants, publishes discovery metadata and a JWKS, and
verifies, introspects and revokes the tokens it issued.

Configuration is read from the environment and an optional .env file in
the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newSeedCommand(),
		newMigrateCommand(),
		newDemoCommand(),
		newHealthCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
