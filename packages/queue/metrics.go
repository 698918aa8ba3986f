package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/imagic/packages/http"
)

// Histogram range: 1us to 5min, 3 significant digits
const (
	minLatencyUs = 1
	maxLatencyUs = 300_000_000
)

// Metrics collects request outcomes and end-to-end latency.
type Metrics struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	startTime time.Time

	total        atomic.Int64
	success      atomic.Int64
	errors       atomic.Int64
	timeouts     atomic.Int64
	noConnection atomic.Int64
	serverErrors atomic.Int64
	attempts     atomic.Int64
	retries      atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		startTime: time.Now(),
	}
}

// Record records a finished request. te is nil for a success.
func (m *Metrics) Record(duration time.Duration, te *http.TransportError) {
	m.total.Add(1)
	if te == nil {
		m.success.Add(1)
	} else {
		m.errors.Add(1)
		switch te.Kind {
		case http.KindTimeout:
			m.timeouts.Add(1)
		case http.KindNoConnection:
			m.noConnection.Add(1)
		case http.KindServerError:
			m.serverErrors.Add(1)
		}
	}

	latencyUs := min(max(duration.Microseconds(), minLatencyUs), maxLatencyUs)

	m.mu.Lock()
	_ = m.histogram.RecordValue(latencyUs)
	m.mu.Unlock()
}

// RecordAttempt counts one exchange with the server.
func (m *Metrics) RecordAttempt() {
	m.attempts.Add(1)
}

func (m *Metrics) RecordRetry() {
	m.retries.Add(1)
}

// Summary is a point-in-time view of the metrics.
type Summary struct {
	Elapsed      time.Duration `json:"elapsed"`
	Total        int64         `json:"total"`
	Success      int64         `json:"success"`
	Errors       int64         `json:"errors"`
	Timeouts     int64         `json:"timeouts"`
	NoConnection int64         `json:"noConnection"`
	ServerErrors int64         `json:"serverErrors"`
	Attempts     int64         `json:"attempts"`
	Retries      int64         `json:"retries"`
	SuccessRate  float64       `json:"successRate"`

	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P99  time.Duration `json:"p99"`
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
}

func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.total.Load()
	success := m.success.Load()

	successRate := float64(0)
	if total > 0 {
		successRate = float64(success) / float64(total)
	}

	return Summary{
		Elapsed:      time.Since(m.startTime),
		Total:        total,
		Success:      success,
		Errors:       m.errors.Load(),
		Timeouts:     m.timeouts.Load(),
		NoConnection: m.noConnection.Load(),
		ServerErrors: m.serverErrors.Load(),
		Attempts:     m.attempts.Load(),
		Retries:      m.retries.Load(),
		SuccessRate:  successRate,
		P50:          time.Duration(m.histogram.ValueAtQuantile(50)) * time.Microsecond,
		P90:          time.Duration(m.histogram.ValueAtQuantile(90)) * time.Microsecond,
		P99:          time.Duration(m.histogram.ValueAtQuantile(99)) * time.Microsecond,
		Min:          time.Duration(m.histogram.Min()) * time.Microsecond,
		Max:          time.Duration(m.histogram.Max()) * time.Microsecond,
		Mean:         time.Duration(m.histogram.Mean()) * time.Microsecond,
	}
}
