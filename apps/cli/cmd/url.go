package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/spf13/cobra"
)

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the upload endpoint URL",
	Long: `Print the URL uploads are sent to, built from the config file and
the endpoint flags.

Examples:
  imagic url
  imagic url --host images.example.com --scheme https
  imagic url --param size=large --param size=small`,
	Args: cobra.NoArgs,
	RunE: urlCommand,
}

func urlCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ep, err := endpointOverrides()
	if err != nil {
		return err
	}
	cfg = cfg.Merge(&config.Config{Endpoint: ep})

	u, err := cfg.URLBuilder().Build()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), u)
	return nil
}
