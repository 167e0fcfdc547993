// Package commands implements the adauth CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "adauth",
	Short: "Active Directory login resolution service",
	Long: `adauth verifies Active Directory passwords for bare usernames.

A bare username is tried both as user@<upn_suffix> and as <NETBIOS>\user; the
format that works is remembered so later logins need a single bind.

Configuration is read from --config (YAML) and ADAUTH_* environment variables,
for example ADAUTH_IDENTITY_UPN_SUFFIX=example.com.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment only when empty")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}
