package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_AttemptTimeout(t *testing.T) {
	p := NewRetryPolicy(10*time.Second, 1, 1)

	assert.Equal(t, 2, p.Attempts())
	assert.Equal(t, 10*time.Second, p.AttemptTimeout(0))
	assert.Equal(t, 20*time.Second, p.AttemptTimeout(1))
	assert.Equal(t, 40*time.Second, p.AttemptTimeout(2))
}

func TestRetryPolicy_NoBackoff(t *testing.T) {
	p := NewRetryPolicy(time.Second, 3, 0)
	assert.Equal(t, time.Second, p.AttemptTimeout(3))
}

func TestRetryPolicy_Clamps(t *testing.T) {
	p := NewRetryPolicy(-time.Second, -2, -1)
	assert.Zero(t, p.Timeout())
	assert.Zero(t, p.MaxRetries())
	assert.Zero(t, p.BackoffMultiplier())
	assert.Equal(t, 1, p.Attempts())
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, DefaultRetryTimeout, p.Timeout())
	assert.Equal(t, DefaultMaxRetries, p.MaxRetries())
	assert.Equal(t, DefaultBackoffMultiplier, p.BackoffMultiplier())
	assert.Equal(t, "timeout=2.5s retries=1 backoff=1", p.String())
}
