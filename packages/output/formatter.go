package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/history"
)

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that write once all results are in.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// HistoryFormatter renders stored uploads.
type HistoryFormatter interface {
	FormatHistory(entries []history.Entry, stats *history.Stats) error
}

// Formats lists the accepted names for New.
var Formats = []string{"console", "json", "junit"}

// New returns the formatter registered under format.
func New(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: %v)", format, Formats)
	}
}
