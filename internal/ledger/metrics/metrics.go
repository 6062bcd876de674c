package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the token ledger.
// Tracks transition outcomes, operation latency, lock contention and
// verification cache effectiveness.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	MintDuration   prometheus.Histogram
	VerifyDuration prometheus.Histogram
	LockContention prometheus.Counter
	VerifyCache    *prometheus.CounterVec
}

// New creates a new Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_ledger_transitions_total",
			Help: "Total number of ledger transition attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_ledger_mint_duration_seconds",
			Help:    "Duration of mint operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_ledger_verify_duration_seconds",
			Help:    "Duration of verify reads (public critical path)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		LockContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_ledger_lock_contention_total",
			Help: "Total number of transitions rejected on bounded lock wait",
		}),
		VerifyCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_ledger_verify_cache_total",
			Help: "Verification cache lookups by result",
		}, []string{"result"}),
	}
}

// IncrementTransition records a transition attempt and its outcome.
func (m *Metrics) IncrementTransition(kind, outcome string) {
	m.Transitions.WithLabelValues(kind, outcome).Inc()
}

// ObserveMint records the duration of a mint operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveMint(start time.Time) {
	m.MintDuration.Observe(time.Since(start).Seconds())
}

// ObserveVerify records the duration of a verify read.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

// IncrementLockContention records a transition rejected on lock wait.
func (m *Metrics) IncrementLockContention() {
	m.LockContention.Inc()
}

// IncrementVerifyCache records a cache lookup result (hit or miss).
func (m *Metrics) IncrementVerifyCache(result string) {
	m.VerifyCache.WithLabelValues(result).Inc()
}
