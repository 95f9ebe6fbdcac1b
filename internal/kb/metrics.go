package kb

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the store's prometheus collectors. Each session labels its
// collectors with its id, so many sessions can share one registry.
type Metrics struct {
	facts      prometheus.Gauge
	learned    *prometheus.CounterVec
	duplicates prometheus.Counter
	saturation prometheus.Gauge
}

// NewMetrics builds collectors for one session and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, session string) (*Metrics, error) {
	labels := prometheus.Labels{"session": session}
	m := &Metrics{
		facts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hyperlore",
			Subsystem:   "kb",
			Name:        "facts",
			Help:        "Number of stored facts.",
			ConstLabels: labels,
		}),
		learned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hyperlore",
			Subsystem:   "kb",
			Name:        "learned_total",
			Help:        "Facts stored, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hyperlore",
			Subsystem:   "kb",
			Name:        "duplicates_total",
			Help:        "Learn calls that matched an existing fact.",
			ConstLabels: labels,
		}),
		saturation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hyperlore",
			Subsystem:   "kb",
			Name:        "aggregate_saturation_ratio",
			Help:        "Aggregate items divided by estimated capacity.",
			ConstLabels: labels,
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.facts, m.learned, m.duplicates, m.saturation} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register kb metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeAdd(kind Kind, total int, saturation float64) {
	if m == nil {
		return
	}
	m.learned.WithLabelValues(string(kind)).Inc()
	m.facts.Set(float64(total))
	m.saturation.Set(saturation)
}

func (m *Metrics) observeDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}
