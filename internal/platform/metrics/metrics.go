package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-level Prometheus metrics shared by the HTTP layer.
// Feature modules register their own metrics packages.
type Metrics struct {
	// HTTP request latencies by route and method
	RequestLatency *prometheus.HistogramVec

	// HTTP responses by route, method, and status class
	Responses *prometheus.CounterVec
}

// New creates a new Metrics instance with all platform metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attesto_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method"}),

		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_http_responses_total",
			Help: "Total HTTP responses by route, method, and status class",
		}, []string{"route", "method", "status"}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
		m.Responses.WithLabelValues(route, method, status).Inc()
	}
}
