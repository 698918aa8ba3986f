package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}

	tests := []struct {
		name     string
		resp     *Response
		err      error
		expected ErrorKind
	}{
		{"deadline exceeded", nil, context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", nil, fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", nil, timeoutErr{}, KindTimeout},
		{"connection refused", nil, refused, KindNoConnection},
		{"dns failure", nil, &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, KindNoConnection},
		{"network unreachable", nil, fmt.Errorf("x: %w", syscall.ENETUNREACH), KindNoConnection},
		{"connection reset", nil, fmt.Errorf("x: %w", syscall.ECONNRESET), KindNoConnection},
		{"other error", nil, errors.New("weird"), KindUnknown},
		{"canceled", nil, context.Canceled, KindUnknown},
		{"no response and no error", nil, nil, KindUnknown},
		{"server body", &Response{StatusCode: 502, Body: []byte("bad gateway")}, nil, KindServerError},
		{"empty client error", &Response{StatusCode: 404}, nil, KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.resp, tt.err)
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.expected, got.Kind)
			}
		})
	}
}

func TestClassify_SuccessIsNil(t *testing.T) {
	assert.Nil(t, Classify(&Response{StatusCode: 200}, nil))
}

func TestClassify_ServerErrorCarriesBody(t *testing.T) {
	got := Classify(&Response{StatusCode: 500, Body: []byte("stack trace")}, nil)
	assert.Equal(t, []byte("stack trace"), got.Body)
	assert.Equal(t, 500, got.StatusCode)
	assert.True(t, IsServerError(got))
	assert.False(t, IsTimeout(got))
}

func TestClassify_KeepsExistingTransportError(t *testing.T) {
	orig := &TransportError{Kind: KindNoConnection, Err: errors.New("x")}
	assert.Same(t, orig, Classify(nil, fmt.Errorf("wrap: %w", orig)))
}

func TestTransportError_Message(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"error string", `{"error":"Depth map not found"}`, "Depth map not found"},
		{"nested message", `{"error":{"message":"too large"}}`, "too large"},
		{"message field", `{"message":"nope"}`, "nope"},
		{"plain text", "  Background image could not be decoded\n", "Background image could not be decoded"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &TransportError{Kind: KindServerError, StatusCode: 400, Body: []byte(tt.body)}
			assert.Equal(t, tt.expected, e.Message())
		})
	}
}

func TestTransportError_Retryable(t *testing.T) {
	assert.True(t, (&TransportError{Kind: KindTimeout}).Retryable())
	assert.True(t, (&TransportError{Kind: KindNoConnection}).Retryable())
	assert.True(t, (&TransportError{Kind: KindServerError, StatusCode: 503}).Retryable())
	assert.True(t, (&TransportError{Kind: KindServerError, StatusCode: 429}).Retryable())
	assert.False(t, (&TransportError{Kind: KindServerError, StatusCode: 400}).Retryable())
	assert.False(t, (&TransportError{Kind: KindUnknown}).Retryable())
}

func TestIsHelpers(t *testing.T) {
	err := fmt.Errorf("upload: %w", &TransportError{Kind: KindTimeout})
	assert.True(t, IsTimeout(err))
	assert.False(t, IsNoConnection(err))
	assert.False(t, IsUnknown(errors.New("plain")))
	assert.True(t, IsUnknown(&TransportError{Kind: KindUnknown}))
}
