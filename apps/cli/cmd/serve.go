package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/mock"
	"github.com/spf13/cobra"
)

var (
	servePortFlag     int
	serveDelayFlag    string
	serveFailuresFlag int
	servePaletteFlag  int
	serveSeedFlag     uint64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local compositing server",
	Long: `Start an HTTP server that accepts the same multipart uploads as the
remote compositing service and answers with a generated autostereogram.

The server:
- Accepts POST /uploads with "background" and "depth" image parts
- Reads separationMin, separationMax, crossEyed and invertDepth form fields
- Serves /healthz for readiness checks and /metrics for Prometheus
- Can add delays and fail the first uploads to exercise client retries

Examples:
  imagic serve
  imagic serve --port 8080
  imagic serve --delay 200ms --failures 2
  imagic serve --palette 8 --seed 42`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().IntVarP(&servePortFlag, "port", "p", getEnvInt("IMAGIC_PORT", mock.DefaultPort), "Port to run the server on (env: IMAGIC_PORT)")
	serveCmd.Flags().StringVarP(&serveDelayFlag, "delay", "d", "0", "Delay to add to all uploads (e.g., 100ms, 1s)")
	serveCmd.Flags().IntVar(&serveFailuresFlag, "failures", 0, "Answer the first N uploads with 503")
	serveCmd.Flags().IntVar(&servePaletteFlag, "palette", 0, "Reduce results to N random colors (0 keeps the background colors)")
	serveCmd.Flags().Uint64Var(&serveSeedFlag, "seed", uint64(time.Now().UnixNano()), "Seed for the random palette")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	// Parse delay
	var delay time.Duration
	if serveDelayFlag != "0" {
		var err error
		delay, err = time.ParseDuration(serveDelayFlag)
		if err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", serveDelayFlag, err))
		}
	}

	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	server := mock.NewServer(
		mock.WithPort(servePortFlag),
		mock.WithDelay(delay),
		mock.WithVerbose(verboseFlag),
		mock.WithFailures(serveFailuresFlag),
		mock.WithPalette(servePaletteFlag, serveSeedFlag),
		mock.WithLogger(logger),
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down compositing server...")
		cancel()
	}()

	return server.StartWithContext(ctx)
}
