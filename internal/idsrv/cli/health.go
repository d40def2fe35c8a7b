package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
)

func newHealthCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether a running server is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := authsdk.NewSDKClient(baseURL).Readiness(cmd.Context())
			if err != nil {
				return fmt.Errorf("unhealthy: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Status)
			for name, state := range resp.Checks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, state)
			}
			if resp.Status != "ok" {
				return errors.New("server is not ready")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	return cmd
}
