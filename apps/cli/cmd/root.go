package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/output"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "testhost",
	Short: "Run test manifests. Report everywhere.",
	Long: `testhost discovers the tests declared in YAML manifests, runs them in
parallel, and reports every result to the console, machine readable JSON,
report files, metrics, a run history database and chat webhooks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits with the status of the command
func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			output.FormatError(os.Stderr, err, getEnvBool("NO_COLOR", false))
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(ExitUsageError, err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(optionsCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// getEnvBool reads a boolean environment variable; any non-empty value other
// than false/0/no is true
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val != "false" && val != "0" && val != "no"
	}
	return defaultVal
}
