// Package cli provides the cobra command tree for the onboarding service.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	serve := newServeCmd()
	rootCmd := &cobra.Command{
		Use:   "onboarding",
		Short: "KYC onboarding checkpoint and verification service",
		Long: `onboarding - KYC onboarding checkpoint and verification service

Tracks each client's onboarding checkpoints, resolves the next wizard
screen, and drives the Aadhaar, eSign and UPI verification sessions.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		serve,
		newResolveCmd(),
		newNameMatchCmd(),
	)
	return rootCmd
}

// Execute runs the root command with the given args and output writers.
func Execute(args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
