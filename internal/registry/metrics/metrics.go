package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the issuer registry.
// Tracks registrations, authorization outcomes and key lifecycle changes.
type Metrics struct {
	IssuerRegistered  prometheus.Counter
	AuthzDenials      *prometheus.CounterVec
	KeyRotations      prometheus.Counter
	StatusChanges     *prometheus.CounterVec
	AuthorizeDuration prometheus.Histogram
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		IssuerRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_issuers_registered_total",
			Help: "Total number of issuer identities registered",
		}),
		AuthzDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_registry_authz_denials_total",
			Help: "Total number of authorization denials by reason",
		}, []string{"reason"}),
		KeyRotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_registry_key_rotations_total",
			Help: "Total number of successful key rotations",
		}),
		StatusChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_registry_status_changes_total",
			Help: "Total number of issuer status transitions by target status",
		}, []string{"status"}),
		AuthorizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_registry_authorize_duration_seconds",
			Help:    "Duration of Authorize operations (token critical path)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncrementIssuerRegistered records a successful registration.
func (m *Metrics) IncrementIssuerRegistered() {
	m.IssuerRegistered.Inc()
}

// IncrementAuthzDenial records an authorization denial with its reason.
func (m *Metrics) IncrementAuthzDenial(reason string) {
	m.AuthzDenials.WithLabelValues(reason).Inc()
}

// IncrementKeyRotation records a successful key rotation.
func (m *Metrics) IncrementKeyRotation() {
	m.KeyRotations.Inc()
}

// IncrementStatusChange records an issuer status transition.
func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

// ObserveAuthorize records the duration of an Authorize operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthorize(start time.Time) {
	m.AuthorizeDuration.Observe(time.Since(start).Seconds())
}
