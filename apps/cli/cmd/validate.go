package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest|config>...",
	Short: "Validate manifests and config files without running them",
	Long: `Validate test manifests and testhost config files without executing
anything. Config files are checked against the config schema.

Examples:
  testhost validate suite.yaml
  testhost validate suite.yaml testhost.config.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	hasErrors := false
	for _, file := range args {
		if err := validateFile(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return withCode(ExitConfigError, errors.New("validation failed"))
	}

	return nil
}

func validateFile(path string) error {
	if isConfigFile(path) {
		_, err := config.LoadConfig(path)
		return err
	}
	if !manifest.IsManifest(path) {
		return fmt.Errorf("not a manifest or config file")
	}
	f, err := manifest.ParseFile(path)
	if err != nil {
		return err
	}
	_, err = f.Assembly()
	return err
}

func isConfigFile(path string) bool {
	return lo.Contains(config.ConfigFilenames, filepath.Base(path))
}
