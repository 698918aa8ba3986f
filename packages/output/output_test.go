package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/abdul-hamid-achik/imagic/packages/queue"
)

func sampleResult() *runner.RunResult {
	return &runner.RunResult{
		URL:      "http://localhost:3000/uploads",
		Duration: 1500 * time.Millisecond,
		Passed:   1,
		Failed:   2,
		Metrics:  queue.Summary{Total: 3, Attempts: 4, Retries: 1, P50: 120 * time.Millisecond},
		Results: []*runner.UploadResult{
			{
				Name:       "shark",
				RequestID:  "req-1",
				Background: "bg.png",
				Depth:      "shark.png",
				Output:     "shark-stereogram.png",
				Bytes:      2048,
				StatusCode: 200,
				Attempts:   1,
				Duration:   120 * time.Millisecond,
			},
			{
				Name:       "busy",
				StatusCode: 503,
				Attempts:   2,
				Kind:       http.KindServerError,
				Error: &http.TransportError{
					Kind:       http.KindServerError,
					StatusCode: 503,
					Body:       []byte(`{"error":"server busy, try again"}`),
				},
			},
			{
				Name:     "offline",
				Attempts: 2,
				Kind:     http.KindNoConnection,
				Error:    &http.TransportError{Kind: http.KindNoConnection, Err: errors.New("connection refused")},
			},
		},
	}
}

func TestNew(t *testing.T) {
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			f, err := New(format, &bytes.Buffer{}, false, true)
			require.NoError(t, err)
			assert.NotNil(t, f)
		})
	}

	_, err := New("tap", &bytes.Buffer{}, false, true)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestConsoleFormatter_FormatResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true))
	f.FormatResult(sampleResult())

	out := buf.String()
	assert.Contains(t, out, "Uploading to: http://localhost:3000/uploads")
	assert.Contains(t, out, "✓ shark → shark-stereogram.png (2.0 KiB, 120ms)")
	assert.Contains(t, out, "✗ busy (server error (status 503): server busy, try again)")
	assert.Contains(t, out, "Status: 503")
	assert.Contains(t, out, "✗ offline (no connection: connection refused)")
	assert.Contains(t, out, "1 succeeded, 2 failed, 3 total")
	assert.Contains(t, out, "Time:    1500ms")
	assert.Contains(t, out, "Attempts: 4 (1 retries)")
}

func TestConsoleFormatter_HeaderAndError(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))
	f.FormatHeader("v1.2.3")
	f.FormatError(errors.New("boom"))
	assert.Equal(t, "imagic v1.2.3\nError: boom\n", buf.String())
}

func TestConsoleFormatter_FormatHistory(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	require.NoError(t, f.FormatHistory(nil, nil))
	assert.Contains(t, buf.String(), "No uploads recorded.")

	buf.Reset()
	entries := []history.Entry{
		{Tag: "shark", Attempts: 1, Duration: 80 * time.Millisecond, Output: "shark.png", CreatedAt: time.Now()},
		{Tag: "busy", Attempts: 2, Kind: "server_error", Error: "status 503", CreatedAt: time.Now()},
	}
	stats := &history.Stats{Total: 2, Succeeded: 1, Failed: 1, MeanDuration: 40 * time.Millisecond}
	require.NoError(t, f.FormatHistory(entries, stats))

	out := buf.String()
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "shark.png")
	assert.Contains(t, out, "server_error")
	assert.Contains(t, out, "Total: 2, 1 succeeded, 1 failed, mean 40ms")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))
	f.FormatHeader("v1")
	f.FormatResult(sampleResult())
	f.FormatError(errors.New("late failure"))
	require.NoError(t, f.Flush(2*time.Second))

	var doc JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, JSONSummary{Total: 3, Succeeded: 1, Failed: 2}, doc.Summary)
	assert.Equal(t, float64(2000), doc.Duration)
	assert.Equal(t, []string{"late failure"}, doc.Errors)
	require.NotNil(t, doc.Metrics)
	assert.Equal(t, int64(1), doc.Metrics.Retries)

	require.Len(t, doc.Uploads, 3)
	assert.True(t, doc.Uploads[0].Succeeded)
	assert.Equal(t, "shark-stereogram.png", doc.Uploads[0].Output)
	assert.Equal(t, "server_error", doc.Uploads[1].Kind)
	assert.Equal(t, "server busy, try again", doc.Uploads[1].Message)
	assert.Equal(t, "no_connection", doc.Uploads[2].Kind)
	assert.Empty(t, doc.Uploads[2].Message)
}

func TestJSONFormatter_FormatHistory(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))
	require.NoError(t, f.FormatHistory(nil, &history.Stats{Total: 0}))
	assert.True(t, strings.Contains(buf.String(), `"entries": []`))
}

func TestJUnitFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))
	f.FormatResult(sampleResult())
	require.NoError(t, f.Flush(time.Second))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(out[strings.Index(out, "\n")+1:]), &suites))
	assert.Equal(t, "imagic", suites.Name)
	assert.Equal(t, 3, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)

	cases := suites.TestSuites[0].TestCases
	require.Len(t, cases, 3)
	assert.Nil(t, cases[0].Failure)
	assert.Contains(t, cases[0].SystemOut, "shark-stereogram.png")
	require.NotNil(t, cases[1].Failure)
	assert.Equal(t, "status 503", cases[1].Failure.Message)
	require.NotNil(t, cases[2].Error)
	assert.Equal(t, "no_connection", cases[2].Error.Type)
}

func TestJUnitFormatter_PropertiesAndErrors(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))
	f.FormatResult(sampleResult())
	f.FormatError(errors.New("watcher error: too many open files"))
	require.NoError(t, f.Flush(time.Second))

	out := buf.String()
	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(out[strings.Index(out, "\n")+1:]), &suites))

	suite := suites.TestSuites[0]
	assert.Contains(t, suite.SystemErr, "too many open files")
	assert.Contains(t, suite.TestCases[0].Properties, JUnitProperty{Name: "request_id", Value: "req-1"})
	assert.Contains(t, suite.TestCases[1].Properties, JUnitProperty{Name: "status", Value: "503"})
	assert.Equal(t, "server busy, try again", suite.TestCases[1].Failure.Content)
}

func TestJUnitFormatter_ErrorWithoutRun(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))
	f.FormatError(errors.New("endpoint unreachable"))
	require.NoError(t, f.Flush(0))

	assert.Contains(t, buf.String(), "<system-err>endpoint unreachable</system-err>")
}
