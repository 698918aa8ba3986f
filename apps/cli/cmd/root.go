package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/abdul-hamid-achik/imagic/packages/core/env"
	"github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	envFileFlag string
	verboseFlag bool
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "imagic",
	Short: "Upload image pairs, get stereograms back.",
	Long: `imagic uploads a background image and a depth map to a compositing
service as one multipart request and saves the autostereogram it returns.
Uploads are queued, rate limited and retried with a growing timeout.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errUploadsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("IMAGIC_CONFIG", ""), "Path to config file (env: IMAGIC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", getEnvString("IMAGIC_ENV_FILE", ".env"), "Path to .env file exported before the config is read (env: IMAGIC_ENV_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("IMAGIC_VERBOSE", false), "Verbose output and debug logging (env: IMAGIC_VERBOSE)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("IMAGIC_NO_COLOR", false), "Disable colored output (env: IMAGIC_NO_COLOR)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// setup runs before every command: it exports the .env file, installs the
// default logger and stamps the build version into the User-Agent.
func setup(cmd *cobra.Command, args []string) error {
	if envFileFlag != "" {
		if _, err := env.LoadAndExportDotEnv(envFileFlag); err != nil {
			// The default .env is optional, an explicit one is not.
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return withExitCode(ExitInputError, fmt.Errorf("loading env file: %w", err))
			}
		}
	}

	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	http.UserAgent = "imagic/" + version
	return nil
}

// loadConfig reads the config file named by --config, or the first one found
// in the working directory, and returns it with defaults filled in.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, withExitCode(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}
	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	return env.GetString(key, defaultVal)
}

func getEnvBool(key string, defaultVal bool) bool {
	return env.GetBool(key, defaultVal)
}

func getEnvInt(key string, defaultVal int) int {
	return env.GetInt(key, defaultVal)
}

func getEnvFloat(key string, defaultVal float64) float64 {
	return env.GetFloat(key, defaultVal)
}
