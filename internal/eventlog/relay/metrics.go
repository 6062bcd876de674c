package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the Kafka export relay.
type Metrics struct {
	Exported        prometheus.Counter
	PublishFailures prometheus.Counter
	Lag             prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with relay metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Exported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_relay_exported_total",
			Help: "Total number of event log entries published to Kafka",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_relay_publish_failures_total",
			Help: "Total number of failed drain attempts",
		}),
		Lag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "attesto_relay_lag",
			Help: "Entries appended to the event log but not yet published",
		}),
	}
}

// AddExported adds to the exported counter.
func (m *Metrics) AddExported(n int) {
	m.Exported.Add(float64(n))
}

// IncPublishFailures increments the publish failure counter.
func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}

// SetLag sets the export lag gauge.
func (m *Metrics) SetLag(lag uint64) {
	m.Lag.Set(float64(lag))
}
