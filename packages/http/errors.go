package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/tidwall/gjson"
)

var (
	// ErrRequestFrozen is returned when a request is mutated after it was enqueued.
	ErrRequestFrozen = errors.New("request is frozen after enqueue")
	// ErrAlreadyEnqueued is returned when a request is enqueued a second time.
	ErrAlreadyEnqueued = errors.New("request already enqueued")

	errNilResponse = errors.New("nil response")
)

// ConfigurationError reports an incomplete endpoint configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// BodyEncodingError reports a failure while serializing a request body.
type BodyEncodingError struct {
	Section string
	Err     error
}

func (e *BodyEncodingError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("encoding body: %v", e.Err)
	}
	return fmt.Sprintf("encoding body section %q: %v", e.Section, e.Err)
}

func (e *BodyEncodingError) Unwrap() error { return e.Err }

// ParseError reports a successful exchange whose response could not be parsed.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind is the classification of a transport failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindNoConnection
	KindServerError
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNoConnection:
		return "no_connection"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// TransportError is a classified failure of one exchange. Body holds the raw
// response bytes for KindServerError and is empty otherwise.
type TransportError struct {
	Kind       ErrorKind
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindServerError:
		if msg := e.Message(); msg != "" {
			return fmt.Sprintf("server error (status %d): %s", e.StatusCode, msg)
		}
		return fmt.Sprintf("server error (status %d)", e.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("timeout: %v", e.Err)
	case KindNoConnection:
		return fmt.Sprintf("no connection: %v", e.Err)
	default:
		if e.Err == nil {
			return "unknown transport error"
		}
		return fmt.Sprintf("unknown transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

const maxMessageLen = 200

// Message returns a human readable message from the server body. JSON bodies
// are searched for an error, message or detail field.
func (e *TransportError) Message() string {
	if len(e.Body) == 0 {
		return ""
	}
	if gjson.ValidBytes(e.Body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(e.Body, path); r.Exists() && r.Type == gjson.String {
				return r.String()
			}
		}
	}
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	return msg
}

// Retryable reports whether a fresh attempt might succeed.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNoConnection:
		return true
	case KindServerError:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

// Classify turns the outcome of one exchange into a TransportError. It
// returns nil when resp is a success and err is nil. Any response that
// reached the caller is a server error carrying the raw body.
func Classify(resp *Response, err error) *TransportError {
	if resp != nil {
		if err == nil && resp.IsSuccess() {
			return nil
		}
		return &TransportError{Kind: KindServerError, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	if err == nil {
		return &TransportError{Kind: KindUnknown, Err: errors.New("no response")}
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	switch {
	case isTimeout(err):
		return &TransportError{Kind: KindTimeout, Err: err}
	case isNoConnection(err):
		return &TransportError{Kind: KindNoConnection, Err: err}
	default:
		return &TransportError{Kind: KindUnknown, Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNoConnection(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func kindOf(err error) (ErrorKind, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return KindUnknown, false
}

// IsTimeout reports whether err is a TransportError of kind Timeout.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsNoConnection reports whether err is a TransportError of kind NoConnection.
func IsNoConnection(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNoConnection
}

// IsServerError reports whether err is a TransportError carrying a server response.
func IsServerError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindServerError
}

// IsUnknown reports whether err is a TransportError of kind Unknown.
func IsUnknown(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnknown
}
