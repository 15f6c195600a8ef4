// Package cli provides CLI commands for the remedy client.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "remedy",
		Short: "remedy - document remediation upload client",
		Long:  "remedy uploads documents to the remediation pipeline, waits for the result and issues a download link.",
	}

	rootCmd.AddCommand(NewUploadCmd())
	rootCmd.AddCommand(NewQuotaCmd())
	rootCmd.AddCommand(NewJobsCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
