// Package cli implements guardianctl, a command-line front end for guardiand.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/guardianbot/guardian/pkg/client"
)

var (
	serverAddr string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level guardianctl command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guardianctl",
		Short: "Talk to the GuardianBot support assistant",
		Long: `guardianctl chats with GuardianBot and manages support tickets
through a running guardiand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			apiClient = client.New(serverAddr)
		},
	}

	defaultAddr := os.Getenv("GUARDIAN_API_URL")
	if defaultAddr == "" {
		defaultAddr = client.DefaultBaseURL
	}
	cmd.PersistentFlags().StringVar(&serverAddr, "server", defaultAddr, "guardiand address")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newChatCmd(),
		newTicketsCmd(),
		newHealthCmd(),
		newConfigCmd(),
	)
	return cmd
}
