package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/core/options"
)

var optionsCmd = &cobra.Command{
	Use:   "options [option [value]...]",
	Short: "List run options, or check the value of one",
	Long: `Without arguments, print every option "testhost run" accepts.

With an option name, validate the given values for that option the same way
a host platform does before it starts a session.

Examples:
  testhost options
  testhost options max-threads 2x
  testhost options report-junit-filename results.xml`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			printOptions(cmd.OutOrStdout())
			return nil
		}
		if err := options.ValidateArguments(args[0], args[1:]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: -%s\n", strings.TrimLeft(args[0], "-"))
		return nil
	},
}
