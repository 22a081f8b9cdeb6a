package projectsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for Project Service calls.
//
// All metrics are prefixed with "finview_projectsvc_".
//
// Metrics:
//   - finview_projectsvc_requests_total{op,outcome} - calls by outcome kind
//   - finview_projectsvc_request_duration_seconds{op} - call latency
//   - finview_projectsvc_unauthorized_total - 401 responses seen
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	UnauthorizedTotal prometheus.Counter
}

// NewMetrics registers the client metrics with reg. A nil reg yields metrics
// that are recorded but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finview_projectsvc_requests_total",
				Help: "Total number of Project Service calls",
			},
			[]string{"op", "outcome"}, // outcome: "ok" or an error kind
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finview_projectsvc_request_duration_seconds",
				Help:    "Duration of Project Service calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		UnauthorizedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finview_projectsvc_unauthorized_total",
				Help: "Total number of responses that ended the session",
			},
		),
	}
}

func (m *Metrics) observe(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.RequestsTotal.WithLabelValues(op, outcome).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
