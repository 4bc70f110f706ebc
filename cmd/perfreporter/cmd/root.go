package cmd

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "perfreporter",
		Short:         "perfreporter stores performance test results and reads them back for reporting.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringSlice("config", nil, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	cmd.PersistentFlags().String("project", "", "Project whose integration is used")
	cmd.PersistentFlags().String("integration", "", "Integration id (defaults to the project's default integration)")
	cmd.PersistentFlags().Uint16("metrics-port", 0, "Serve prometheus metrics on this port while uploading")

	cmd.AddCommand(
		uploadCmd(),
		testsCmd(),
		deleteCmd(),
		bucketsCmd(),
		summaryCmd(),
		versionCmd(),
	)

	return cmd
}
