// Package cli wires the loupe command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped by main from the embedded VERSION file.
var Version string

// TrackerScript holds the embedded browser tracker, passed from main.
var TrackerScript []byte

// RootCmd is the loupe entry point. Running it without a subcommand starts
// the server, so `loupe` alone works in containers.
var RootCmd = &cobra.Command{
	Use:   "loupe",
	Short: "Privacy-first web analytics",
	Long: `Loupe - privacy-first web analytics.

Loupe counts visitors without cookies or persistent identifiers. Visitor
fingerprints rotate daily and cannot be reversed into personal data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServe()
		}
		return cmd.Help()
	},
}

// Execute runs the CLI. Called by main with build-time values.
func Execute(version string, trackerScript []byte) error {
	Version = version
	TrackerScript = trackerScript
	RootCmd.Version = version

	return RootCmd.Execute()
}
