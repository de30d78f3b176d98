package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that guardiand is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Health(cmd.Context()); err != nil {
				return fmt.Errorf("cannot reach server: %w", err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "guardiand at %s is healthy\n", serverAddr)
			return nil
		},
	}
}
