package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/abdul-hamid-achik/imagic/packages/http"
)

// Exit codes for imagic CLI
const (
	// ExitSuccess indicates every upload produced an image
	ExitSuccess = 0

	// ExitUploadFailure indicates one or more uploads failed
	ExitUploadFailure = 1

	// ExitInputError indicates an image or config file could not be read
	ExitInputError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// errUploadsFailed is returned when a run completed but not every upload
// produced an image. Its details have already been reported.
var errUploadsFailed = errors.New("one or more uploads failed")

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, errUploadsFailed) {
		return ExitUploadFailure
	}

	var ce *http.ConfigurationError
	var ve *config.ValidationError
	if errors.As(err, &ce) || errors.As(err, &ve) {
		return ExitConfigError
	}

	var te *http.TransportError
	if errors.As(err, &te) && (te.Kind == http.KindTimeout || te.Kind == http.KindNoConnection) {
		return ExitNetworkError
	}
	return ExitUploadFailure
}
