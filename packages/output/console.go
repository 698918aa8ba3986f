package output

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/abdul-hamid-achik/imagic/packages/queue"
)

// formatBytes renders a size with a binary unit
func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Uploading to: "+result.URL))
	fmt.Fprintf(f.writer, "\n")

	for _, r := range result.Results {
		if r.Error != nil {
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), r.Name, red(fmt.Sprintf("(%v)", r.Error)))
			if f.verbose {
				if r.Attempts > 0 {
					fmt.Fprintf(f.writer, "    Attempts: %d\n", r.Attempts)
				}
				if r.Kind == http.KindServerError {
					fmt.Fprintf(f.writer, "    Status: %d\n", r.StatusCode)
				}
			}
			continue
		}

		fmt.Fprintf(f.writer, "  %s %s → %s %s\n", green("✓"), r.Name, r.Output,
			cyan(fmt.Sprintf("(%s, %dms)", formatBytes(r.Bytes), r.Duration.Milliseconds())))

		if f.verbose {
			fmt.Fprintf(f.writer, "    Background: %s\n", r.Background)
			fmt.Fprintf(f.writer, "    Depth:      %s\n", r.Depth)
			fmt.Fprintf(f.writer, "    Attempts:   %d\n", r.Attempts)
			fmt.Fprintf(f.writer, "    Request:    %s\n", r.RequestID)
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Uploads: ")
	if result.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d succeeded", result.Passed)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", result.Passed+result.Failed)
	fmt.Fprintf(f.writer, "Time:    %dms\n", result.Duration.Milliseconds())
	if f.verbose && result.Metrics.Total > 0 {
		f.formatMetrics(result.Metrics)
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) formatMetrics(m queue.Summary) {
	fmt.Fprintf(f.writer, "Latency: p50 %s, p90 %s, p99 %s (max %s)\n",
		m.P50.Round(time.Millisecond), m.P90.Round(time.Millisecond),
		m.P99.Round(time.Millisecond), m.Max.Round(time.Millisecond))
	fmt.Fprintf(f.writer, "Attempts: %d (%d retries)\n", m.Attempts, m.Retries)
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("imagic"), version)
}

func (f *ConsoleFormatter) FormatHistory(entries []history.Entry, stats *history.Stats) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if len(entries) == 0 {
		fmt.Fprintln(f.writer, "No uploads recorded.")
	} else {
		tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSTATUS\tTAG\tATTEMPTS\tDURATION\tRESULT")
		for _, e := range entries {
			status := green("ok")
			detail := e.Output
			if !e.Succeeded() {
				status = red(e.Kind)
				detail = e.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
				e.CreatedAt.Local().Format(time.DateTime), status, e.Tag, e.Attempts, e.Duration.Milliseconds(), detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if stats != nil {
		fmt.Fprintf(f.writer, "\nTotal: %d, %s, %s, mean %dms\n", stats.Total,
			green(fmt.Sprintf("%d succeeded", stats.Succeeded)),
			red(fmt.Sprintf("%d failed", stats.Failed)),
			stats.MeanDuration.Milliseconds())
	}
	return nil
}
