package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/abdul-hamid-achik/imagic/packages/queue"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary    `json:"summary"`
	Uploads  []JSONUpload   `json:"uploads"`
	Metrics  *queue.Summary `json:"metrics,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Duration float64        `json:"duration"`
	Time     string         `json:"time"`
}

// JSONSummary represents the upload summary
type JSONSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JSONUpload represents a single upload result
type JSONUpload struct {
	Name       string  `json:"name"`
	URL        string  `json:"url"`
	RequestID  string  `json:"requestId,omitempty"`
	Background string  `json:"background"`
	Depth      string  `json:"depth"`
	Output     string  `json:"output,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	Succeeded  bool    `json:"succeeded"`
	StatusCode int     `json:"statusCode,omitempty"`
	Attempts   int     `json:"attempts"`
	Duration   float64 `json:"duration"`
	Kind       string  `json:"kind,omitempty"`
	Error      string  `json:"error,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// JSONHistory is the document written for stored uploads.
type JSONHistory struct {
	Entries []history.Entry `json:"entries"`
	Stats   *history.Stats  `json:"stats,omitempty"`
}

// JSONFormatter formats upload results as JSON
type JSONFormatter struct {
	writer  io.Writer
	uploads []JSONUpload
	errors  []string
	metrics *queue.Summary
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		uploads: make([]JSONUpload, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	for _, r := range result.Results {
		upload := JSONUpload{
			Name:       r.Name,
			URL:        result.URL,
			RequestID:  r.RequestID,
			Background: r.Background,
			Depth:      r.Depth,
			Output:     r.Output,
			Bytes:      r.Bytes,
			Succeeded:  r.Passed(),
			StatusCode: r.StatusCode,
			Attempts:   r.Attempts,
			Duration:   float64(r.Duration.Milliseconds()),
		}

		if r.Error != nil {
			upload.Kind = r.Kind.String()
			upload.Error = r.Error.Error()
			var te *http.TransportError
			if errors.As(r.Error, &te) && te.Kind == http.KindServerError {
				upload.Message = te.Message()
			}
		}

		f.uploads = append(f.uploads, upload)
	}

	metrics := result.Metrics
	f.metrics = &metrics
}

// FormatError records err in the errors array of the flushed document.
func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var succeeded, failed int
	for _, u := range f.uploads {
		if u.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}

	output := JSONOutput{
		Summary: JSONSummary{
			Total:     len(f.uploads),
			Succeeded: succeeded,
			Failed:    failed,
		},
		Uploads:  f.uploads,
		Metrics:  f.metrics,
		Errors:   f.errors,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (f *JSONFormatter) FormatHistory(entries []history.Entry, stats *history.Stats) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(JSONHistory{Entries: entries, Stats: stats})
}
