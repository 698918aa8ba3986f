package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abdul-hamid-achik/imagic/packages/http"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.Record(100*time.Millisecond, nil)
	m.Record(150*time.Millisecond, nil)
	m.Record(50*time.Millisecond, &http.TransportError{Kind: http.KindTimeout})
	m.Record(20*time.Millisecond, &http.TransportError{Kind: http.KindNoConnection})
	m.Record(30*time.Millisecond, &http.TransportError{Kind: http.KindServerError, StatusCode: 500})
	m.Record(30*time.Millisecond, &http.TransportError{Kind: http.KindUnknown, Err: errors.New("x")})

	s := m.Summary()
	assert.Equal(t, int64(6), s.Total)
	assert.Equal(t, int64(2), s.Success)
	assert.Equal(t, int64(4), s.Errors)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.Equal(t, int64(1), s.NoConnection)
	assert.Equal(t, int64(1), s.ServerErrors)
	assert.InDelta(t, 2.0/6.0, s.SuccessRate, 0.001)
}

func TestMetrics_Percentiles(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.Record(time.Duration(i+1)*time.Millisecond, nil)
	}

	s := m.Summary()
	assert.True(t, s.P50 > 0)
	assert.True(t, s.P90 >= s.P50)
	assert.True(t, s.P99 >= s.P90)
	assert.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Max), float64(time.Millisecond))
}

func TestMetrics_ClampsLatency(t *testing.T) {
	m := NewMetrics()
	m.Record(0, nil)
	m.Record(time.Hour, nil)

	s := m.Summary()
	assert.Equal(t, int64(2), s.Total)
	assert.Equal(t, time.Microsecond, s.Min)
}
