package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the CraftDesk admin CLI. Subcommands
// (bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "craftdesk",
	Short:         "CraftDesk admin CLI",
	Long:          "Administrative utilities for CraftDesk (shared-schema bootstrap, tenant lifecycle management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
