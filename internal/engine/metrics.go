package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

// Metrics count query outcomes and proof results for one session.
type Metrics struct {
	queries    *prometheus.CounterVec
	proofs     *prometheus.CounterVec
	proofSteps prometheus.Histogram
	proofTime  prometheus.Histogram
}

// NewMetrics builds the session collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, session string) (*Metrics, error) {
	labels := prometheus.Labels{"session": session}
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hyperlore",
			Subsystem:   "session",
			Name:        "queries_total",
			Help:        "Queries answered, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hyperlore",
			Subsystem:   "session",
			Name:        "proofs_total",
			Help:        "Proofs attempted, by status and reason.",
			ConstLabels: labels,
		}, []string{"status", "reason"}),
		proofSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hyperlore",
			Subsystem:   "session",
			Name:        "proof_steps",
			Help:        "Search steps spent per proof.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
		proofTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hyperlore",
			Subsystem:   "session",
			Name:        "proof_duration_seconds",
			Help:        "Wall time per proof.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.queries, m.proofs, m.proofSteps, m.proofTime} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register session metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeQuery(o query.Outcome) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observeProof(res *proof.Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.proofs.WithLabelValues(string(res.Status), string(res.Reason)).Inc()
	m.proofSteps.Observe(float64(res.Steps))
	m.proofTime.Observe(elapsed.Seconds())
}
