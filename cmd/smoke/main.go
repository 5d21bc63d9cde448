// Command smoke runs the login-flow smoke test against a local application.
//
// Usage:
//
//	AUTH_USERNAME=... AUTH_PASSWORD=... smoke run
//	smoke run --target-url http://localhost:8080 --headless=false
//	smoke config
//
// The exit code is 0 when the scenario passes and 1 otherwise.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smoke",
		Short: "Login-flow smoke test",
		Long: `Smoke drives Chrome against the local application, signs in through the
identity provider when the app redirects there, and checks the displayed
identity.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Config file (default: ./smoke.yaml if present)")
	root.PersistentFlags().String("env-file", "", "Dotenv file (default: ./.env if present)")
	root.PersistentFlags().String("target-url", "", "Application URL")
	root.PersistentFlags().Bool("headless", true, "Run Chrome headless")
	root.PersistentFlags().Bool("chrome-web-security", false, "Enforce the same-origin policy in Chrome")
	root.PersistentFlags().String("chrome-bin", "", "Chrome binary (default: auto-detect or download)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log every step")

	root.AddCommand(newRunCmd(), newConfigCmd(), newVersionCmd(root))
	return root
}

func newVersionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "smoke %s\n", root.Version)
		},
	}
}
