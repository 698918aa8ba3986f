package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <background> <depth> [<background> <depth>...]",
	Short: "Upload image pairs and save the stereograms",
	Long: `Upload one or more background/depth image pairs to the compositing
service. Each pair is sent as one multipart POST and the returned PNG is
written to --output-dir as <depth name>-stereogram.png.

Examples:
  imagic upload bg.png depth.png
  imagic upload bg.png depth.png -o out.png
  imagic upload a.png a-depth.png b.png b-depth.png --concurrency 2
  imagic upload bg.jpg depth.png --host images.example.com --scheme https
  imagic upload bg.png depth.png --retries 3 --timeout 5s --backoff 2
  imagic upload bg.png depth.png --watch
  imagic upload bg.png depth.png --format junit --report report.xml`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 || len(args)%2 != 0 {
			return withExitCode(ExitUsageError, fmt.Errorf("expected background/depth pairs, got %d argument(s)", len(args)))
		}
		return nil
	},
	RunE: uploadCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	// Endpoint flags, shared with the url command
	schemeFlag string
	hostFlag   string
	pathFlag   string
	paramFlags []string

	nameFlag        string
	outputFlag      string
	outputDirFlag   string
	formatFlag      string
	reportFileFlag  string
	timeoutFlag     string
	retriesFlag     int
	backoffFlag     float64
	retryDelayFlag  string
	concurrencyFlag int
	rateFlag        float64
	headerFlags     []string
	sepMinFlag      int
	sepMaxFlag      int
	crossEyedFlag   bool
	invertDepthFlag bool
	noConvertFlag   bool
	insecureFlag    bool
	proxyFlag       string
	noHistoryFlag   bool
	historyDBFlag   string
	waitFlag        string
	watchFlag       bool
)

func addEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&schemeFlag, "scheme", getEnvString("IMAGIC_SCHEME", ""), "Endpoint scheme, http or https (env: IMAGIC_SCHEME)")
	cmd.Flags().StringVar(&hostFlag, "host", getEnvString("IMAGIC_HOST", ""), "Endpoint host, optionally with port (env: IMAGIC_HOST)")
	cmd.Flags().StringVar(&pathFlag, "path", getEnvString("IMAGIC_PATH", ""), "Endpoint path (env: IMAGIC_PATH)")
	cmd.Flags().StringArrayVar(&paramFlags, "param", nil, "Query parameter as name=value (repeatable)")
}

func init() {
	addEndpointFlags(uploadCmd)
	addEndpointFlags(urlCmd)

	// Output flags
	uploadCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Name reported for a single pair (default: depth file name)")
	uploadCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Where to write the stereogram of a single pair")
	uploadCmd.Flags().StringVar(&outputDirFlag, "output-dir", getEnvString("IMAGIC_OUTPUT_DIR", ""), "Directory for stereograms (env: IMAGIC_OUTPUT_DIR)")
	uploadCmd.Flags().StringVarP(&formatFlag, "format", "f", getEnvString("IMAGIC_FORMAT", ""), "Report format: console, json, junit (env: IMAGIC_FORMAT)")
	uploadCmd.Flags().StringVar(&reportFileFlag, "report", getEnvString("IMAGIC_REPORT", ""), "Write the report to a file (default: stdout) (env: IMAGIC_REPORT)")

	// Retry and scheduling flags
	uploadCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("IMAGIC_TIMEOUT", ""), "Timeout of the first attempt (e.g., 10s) (env: IMAGIC_TIMEOUT)")
	uploadCmd.Flags().IntVar(&retriesFlag, "retries", getEnvInt("IMAGIC_RETRIES", 1), "Retries after the first attempt (env: IMAGIC_RETRIES)")
	uploadCmd.Flags().Float64Var(&backoffFlag, "backoff", getEnvFloat("IMAGIC_BACKOFF", 1), "Timeout growth per retry; attempt n waits timeout*(1+backoff)^n (env: IMAGIC_BACKOFF)")
	uploadCmd.Flags().StringVar(&retryDelayFlag, "retry-delay", getEnvString("IMAGIC_RETRY_DELAY", ""), "Pause before a retry (e.g., 500ms) (env: IMAGIC_RETRY_DELAY)")
	uploadCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", getEnvInt("IMAGIC_CONCURRENCY", 0), "Uploads in flight at once (env: IMAGIC_CONCURRENCY)")
	uploadCmd.Flags().Float64VarP(&rateFlag, "rate", "r", getEnvFloat("IMAGIC_RATE", 0), "Attempts per second, 0 for unlimited (env: IMAGIC_RATE)")

	// Request flags
	uploadCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Extra request header as \"Name: value\" (repeatable)")
	uploadCmd.Flags().IntVar(&sepMinFlag, "separation-min", 0, "Minimum pattern separation in pixels")
	uploadCmd.Flags().IntVar(&sepMaxFlag, "separation-max", 0, "Maximum pattern separation in pixels")
	uploadCmd.Flags().BoolVar(&crossEyedFlag, "cross-eyed", false, "Request a cross-eyed stereogram")
	uploadCmd.Flags().BoolVar(&invertDepthFlag, "invert-depth", false, "Treat dark depth values as near")
	uploadCmd.Flags().BoolVar(&noConvertFlag, "no-convert", getEnvBool("IMAGIC_NO_CONVERT", false), "Send images as-is instead of re-encoding to PNG (env: IMAGIC_NO_CONVERT)")

	// Network flags
	uploadCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("IMAGIC_PROXY", ""), "Proxy URL for HTTP requests (env: IMAGIC_PROXY)")
	uploadCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("IMAGIC_INSECURE", false), "Disable SSL certificate validation (env: IMAGIC_INSECURE)")
	uploadCmd.Flags().StringVar(&waitFlag, "wait", getEnvString("IMAGIC_WAIT", ""), "Wait up to this long for the service health check before uploading (env: IMAGIC_WAIT)")

	// History flags
	uploadCmd.Flags().BoolVar(&noHistoryFlag, "no-history", getEnvBool("IMAGIC_NO_HISTORY", false), "Do not record uploads (env: IMAGIC_NO_HISTORY)")
	uploadCmd.Flags().StringVar(&historyDBFlag, "history-db", getEnvString("IMAGIC_HISTORY_DB", ""), "History database (env: IMAGIC_HISTORY_DB)")

	uploadCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the input images and upload again when they change")
}

// isSet reports whether a flag was given on the command line or through
// its environment variable.
func isSet(cmd *cobra.Command, flag, envKey string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return true
	}
	return envKey != "" && os.Getenv(envKey) != ""
}

// endpointOverrides returns the endpoint settings given by flags.
func endpointOverrides() (config.Endpoint, error) {
	ep := config.Endpoint{
		Scheme: schemeFlag,
		Host:   hostFlag,
		Path:   pathFlag,
	}
	for _, p := range paramFlags {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return ep, withExitCode(ExitUsageError, fmt.Errorf("invalid --param %q (expected name=value)", p))
		}
		ep.Params = append(ep.Params, config.Param{Name: name, Value: value})
	}
	return ep, nil
}

func parseMillis(flag, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, withExitCode(ExitUsageError, fmt.Errorf("invalid --%s value %q", flag, value))
	}
	return int(d.Milliseconds()), nil
}

// uploadOverrides builds the part of the configuration given on the command
// line. Merged over the file config, unset fields keep the file's values.
func uploadOverrides(cmd *cobra.Command) (*config.Config, error) {
	ep, err := endpointOverrides()
	if err != nil {
		return nil, err
	}

	over := &config.Config{
		Endpoint:    ep,
		Concurrency: concurrencyFlag,
		Rate:        rateFlag,
		Proxy:       proxyFlag,
		HistoryDB:   historyDBFlag,
		OutputDir:   outputDirFlag,
		Output:      formatFlag,
	}
	if over.Timeout, err = parseMillis("timeout", timeoutFlag); err != nil {
		return nil, err
	}
	if over.RetryDelay, err = parseMillis("retry-delay", retryDelayFlag); err != nil {
		return nil, err
	}
	if isSet(cmd, "retries", "IMAGIC_RETRIES") {
		if retriesFlag < 0 {
			return nil, withExitCode(ExitUsageError, fmt.Errorf("--retries must not be negative"))
		}
		over.Retries = config.IntPtr(retriesFlag)
	}
	if isSet(cmd, "backoff", "IMAGIC_BACKOFF") {
		over.BackoffMultiplier = config.FloatPtr(backoffFlag)
	}

	if len(headerFlags) > 0 {
		over.Headers = make(map[string]string, len(headerFlags))
		for _, h := range headerFlags {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, withExitCode(ExitUsageError, fmt.Errorf("invalid --header %q (expected \"Name: value\")", h))
			}
			over.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	if isSet(cmd, "separation-min", "") {
		over.Form.SeparationMin = config.IntPtr(sepMinFlag)
	}
	if isSet(cmd, "separation-max", "") {
		over.Form.SeparationMax = config.IntPtr(sepMaxFlag)
	}
	if isSet(cmd, "cross-eyed", "") {
		over.Form.CrossEyed = config.BoolPtr(crossEyedFlag)
	}
	if isSet(cmd, "invert-depth", "") {
		over.Form.InvertDepth = config.BoolPtr(invertDepthFlag)
	}

	if isSet(cmd, "no-convert", "IMAGIC_NO_CONVERT") {
		over.ConvertPNG = config.BoolPtr(!noConvertFlag)
	}
	if isSet(cmd, "insecure", "IMAGIC_INSECURE") {
		over.ValidateSSL = config.BoolPtr(!insecureFlag)
	}
	if isSet(cmd, "no-history", "IMAGIC_NO_HISTORY") {
		over.History = config.BoolPtr(!noHistoryFlag)
	}
	if isSet(cmd, "verbose", "IMAGIC_VERBOSE") {
		over.Verbose = config.BoolPtr(verboseFlag)
	}
	if isSet(cmd, "no-color", "IMAGIC_NO_COLOR") {
		over.NoColor = config.BoolPtr(noColorFlag)
	}
	return over, nil
}

// jobsFromArgs pairs up background and depth paths.
func jobsFromArgs(args []string) ([]runner.Job, error) {
	if outputFlag != "" && len(args) > 2 {
		return nil, withExitCode(ExitUsageError, errors.New("--output can only be used with a single pair"))
	}
	if nameFlag != "" && len(args) > 2 {
		return nil, withExitCode(ExitUsageError, errors.New("--name can only be used with a single pair"))
	}

	jobs := make([]runner.Job, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		for _, p := range args[i : i+2] {
			if _, err := os.Stat(p); err != nil {
				return nil, withExitCode(ExitInputError, fmt.Errorf("cannot read image: %w", err))
			}
		}
		jobs = append(jobs, runner.Job{
			Name:           nameFlag,
			BackgroundPath: args[i],
			DepthPath:      args[i+1],
			OutputPath:     outputFlag,
		})
	}
	return jobs, nil
}

func uploadCommand(cmd *cobra.Command, args []string) error {
	jobs, err := jobsFromArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	over, err := uploadOverrides(cmd)
	if err != nil {
		return err
	}
	cfg = cfg.Merge(over)
	if err := cfg.Check(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	runnerOpts := []runner.Option{runner.WithLogger(logger)}
	if cfg.GetHistory() {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Warn("upload history disabled", "db", cfg.HistoryDB, "error", err)
		} else {
			defer store.Close()
			runnerOpts = append(runnerOpts, runner.WithHistory(store))
		}
	}

	r, err := runner.NewRunner(cfg, runnerOpts...)
	if err != nil {
		return err
	}

	if waitFlag != "" {
		timeout, err := time.ParseDuration(waitFlag)
		if err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid --wait value %q", waitFlag))
		}
		healthURL, err := r.HealthURL()
		if err != nil {
			return err
		}
		logger.Info("waiting for service", "url", healthURL, "timeout", timeout)
		if err := runner.WaitForService(ctx, healthURL, timeout, 0); err != nil {
			return withExitCode(ExitNetworkError, err)
		}
	}

	var out io.Writer = cmd.OutOrStdout()
	if reportFileFlag != "" {
		f, err := os.Create(reportFileFlag)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	formatter, err := output.New(cfg.Output, out, cfg.GetVerbose(), cfg.GetNoColor())
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	if _, ok := formatter.(output.Flushable); ok && watchFlag {
		return withExitCode(ExitUsageError, fmt.Errorf("--watch needs console output, got %q", cfg.Output))
	}

	runUploads := func() (*runner.RunResult, error) {
		result, err := r.Run(ctx, jobs)
		if result != nil {
			formatter.FormatResult(result)
		}
		return result, err
	}

	start := time.Now()
	result, runErr := runUploads()

	if !watchFlag {
		if flushable, ok := formatter.(output.Flushable); ok {
			if err := flushable.Flush(time.Since(start)); err != nil {
				return fmt.Errorf("error writing output: %w", err)
			}
		}
		if runErr != nil {
			return runErr
		}
		if result.Failed > 0 {
			return errUploadsFailed
		}
		return nil
	}

	return watchAndUpload(ctx, cmd, jobs, formatter, runUploads)
}

// watchAndUpload re-runs the uploads whenever one of the input images is
// written, until ctx is cancelled.
func watchAndUpload(ctx context.Context, cmd *cobra.Command, jobs []runner.Job, formatter output.Formatter, runUploads func() (*runner.RunResult, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files instead of writing them, so watch the
	// directories and filter by name.
	inputs := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	for _, job := range jobs {
		for _, p := range []string{job.BackgroundPath, job.DepthPath} {
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = p
			}
			inputs[abs] = true
			dir := filepath.Dir(abs)
			if !watchedDirs[dir] {
				if err := watcher.Add(dir); err != nil {
					formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
				}
				watchedDirs[dir] = true
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer
	rerun := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nStopped watching.\n")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !inputs[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case <-rerun:
			fmt.Fprintf(cmd.OutOrStdout(), "\n--- Change detected, uploading again ---\n")
			if _, err := runUploads(); err != nil && ctx.Err() == nil {
				formatter.FormatError(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}
