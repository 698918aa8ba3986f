package output

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/core/runner"
	"github.com/abdul-hamid-achik/imagic/packages/http"
)

// JUnitTestSuites is the report root. Each run becomes one suite named
// after the endpoint it uploaded to.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase is one upload. Its properties carry the request id,
// attempt count and status code.
type JUnitTestCase struct {
	Name       string          `xml:"name,attr"`
	ClassName  string          `xml:"classname,attr"`
	Time       float64         `xml:"time,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	Failure    *JUnitProblem   `xml:"failure,omitempty"`
	Error      *JUnitProblem   `xml:"error,omitempty"`
	SystemOut  string          `xml:"system-out,omitempty"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitProblem is written as <failure> when the server rejected an upload
// and as <error> when no usable response arrived.
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter collects runs and writes them as JUnit XML on Flush.
type JUnitFormatter struct {
	writer io.Writer
	suites []JUnitTestSuite
	errs   []error
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatResult(result *runner.RunResult) {
	suite := JUnitTestSuite{
		Name:      result.URL,
		Tests:     len(result.Results),
		Time:      result.Duration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(result.Results)),
	}

	for _, r := range result.Results {
		tc := JUnitTestCase{
			Name:      r.Name,
			ClassName: "imagic.upload",
			Time:      r.Duration.Seconds(),
		}
		if r.RequestID != "" {
			tc.Properties = append(tc.Properties, JUnitProperty{Name: "request_id", Value: r.RequestID})
		}
		tc.Properties = append(tc.Properties, JUnitProperty{Name: "attempts", Value: strconv.Itoa(r.Attempts)})
		if r.StatusCode != 0 {
			tc.Properties = append(tc.Properties, JUnitProperty{Name: "status", Value: strconv.Itoa(r.StatusCode)})
		}

		switch {
		case r.Passed():
			tc.SystemOut = fmt.Sprintf("wrote %s (%d bytes) after %d attempt(s)", r.Output, r.Bytes, r.Attempts)
		case r.Kind == http.KindServerError:
			suite.Failures++
			tc.Failure = &JUnitProblem{
				Message: fmt.Sprintf("status %d", r.StatusCode),
				Type:    r.Kind.String(),
				Content: serverMessage(r.Error),
			}
		default:
			suite.Errors++
			tc.Error = &JUnitProblem{
				Message: r.Error.Error(),
				Type:    r.Kind.String(),
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	f.suites = append(f.suites, suite)
}

// serverMessage prefers the message the server put in its body.
func serverMessage(err error) string {
	var te *http.TransportError
	if errors.As(err, &te) {
		if msg := te.Message(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// FormatError keeps errors that are not tied to an upload. They are written
// to the last suite's system-err.
func (f *JUnitFormatter) FormatError(err error) {
	f.errs = append(f.errs, err)
}

func (f *JUnitFormatter) FormatHeader(version string) {}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	suites := JUnitTestSuites{
		Name:       "imagic",
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.suites,
	}
	for _, s := range f.suites {
		suites.Tests += s.Tests
		suites.Failures += s.Failures
		suites.Errors += s.Errors
	}
	if len(f.errs) > 0 {
		if len(suites.TestSuites) == 0 {
			suites.TestSuites = append(suites.TestSuites, JUnitTestSuite{Name: "imagic"})
		}
		last := &suites.TestSuites[len(suites.TestSuites)-1]
		last.SystemErr = errors.Join(f.errs...).Error()
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}
