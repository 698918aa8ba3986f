package mock

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type serverMetrics struct {
	uploads  *prometheus.CounterVec
	duration prometheus.Histogram
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagic",
			Name:      "uploads_total",
			Help:      "Uploads handled, by response status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imagic",
			Name:      "upload_duration_seconds",
			Help:      "Time spent handling an upload.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.uploads, m.duration)
	return m
}

func (m *serverMetrics) observe(status int, d time.Duration) {
	m.uploads.WithLabelValues(strconv.Itoa(status)).Inc()
	m.duration.Observe(d.Seconds())
}
