package http

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultRetryTimeout is the per-attempt timeout of DefaultRetryPolicy.
	DefaultRetryTimeout = 2500 * time.Millisecond
	// DefaultMaxRetries is the number of retries of DefaultRetryPolicy.
	DefaultMaxRetries = 1
	// DefaultBackoffMultiplier is the backoff multiplier of DefaultRetryPolicy.
	DefaultBackoffMultiplier = 1.0
)

// RetryPolicy tells the queue how many times to re-issue a request and how
// long each attempt may take. It is an immutable value.
type RetryPolicy struct {
	timeout           time.Duration
	maxRetries        int
	backoffMultiplier float64
}

// NewRetryPolicy builds a policy. Negative values are clamped to zero.
func NewRetryPolicy(timeout time.Duration, maxRetries int, backoffMultiplier float64) RetryPolicy {
	return RetryPolicy{
		timeout:           max(timeout, 0),
		maxRetries:        max(maxRetries, 0),
		backoffMultiplier: math.Max(backoffMultiplier, 0),
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultRetryTimeout, DefaultMaxRetries, DefaultBackoffMultiplier)
}

func (p RetryPolicy) Timeout() time.Duration     { return p.timeout }
func (p RetryPolicy) MaxRetries() int            { return p.maxRetries }
func (p RetryPolicy) BackoffMultiplier() float64 { return p.backoffMultiplier }

// Attempts returns the total number of attempts, the first one included.
func (p RetryPolicy) Attempts() int {
	return p.maxRetries + 1
}

// AttemptTimeout returns the timeout of the zero-based attempt n. Every retry
// grows the previous timeout by timeout*multiplier.
func (p RetryPolicy) AttemptTimeout(n int) time.Duration {
	if n <= 0 || p.backoffMultiplier == 0 {
		return p.timeout
	}
	return time.Duration(float64(p.timeout) * math.Pow(1+p.backoffMultiplier, float64(n)))
}

func (p RetryPolicy) String() string {
	return fmt.Sprintf("timeout=%s retries=%d backoff=%g", p.timeout, p.maxRetries, p.backoffMultiplier)
}
