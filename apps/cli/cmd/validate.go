package cmd

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate imagic config files",
	Long: `Validate config files against the imagic schema and check that the
settings can be used together. Without arguments the config file in the
current directory is validated.

Examples:
  imagic validate
  imagic validate .imagic.yaml staging.imagic.yaml`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files := args
	if len(files) == 0 {
		found := configFlag
		if found == "" {
			found = config.FindConfigFile(".")
		}
		if found == "" {
			return withExitCode(ExitUsageError, fmt.Errorf("no config file found (looked for %v)", config.ConfigFilenames))
		}
		files = []string{found}
	}

	hasErrors := false
	for _, file := range files {
		if err := validateFile(file); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return withExitCode(ExitConfigError, errValidationFailed)
	}

	return nil
}

var errValidationFailed = fmt.Errorf("validation failed")

func validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}
	return cfg.Check()
}
