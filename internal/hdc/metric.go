package hdc

import (
	"bytes"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// MetricVector is a fixed-length vector of byte channels.
type MetricVector struct {
	data []byte
}

func (*MetricVector) isVector() {}

// Strategy implements Vector.
func (*MetricVector) Strategy() StrategyID { return Metric }

// Len is the number of channels.
func (v *MetricVector) Len() int { return len(v.data) }

// Equal implements Vector.
func (v *MetricVector) Equal(other Vector) bool {
	o, ok := other.(*MetricVector)
	return ok && bytes.Equal(o.data, v.data)
}

// MetricStrategy is the metric-affine byte algebra. The channel range is
// closed under both XOR and the mean, so nothing is clamped.
type MetricStrategy struct {
	n   int
	tag string
}

const minMetricBytes = 8

// NewMetric builds a metric strategy over n byte channels.
func NewMetric(n int) (*MetricStrategy, error) {
	if n <= 0 {
		n = DefaultMetricBytes
	}
	if n < minMetricBytes {
		return nil, &ConfigError{Field: "size", Value: fmt.Sprint(n),
			Reason: fmt.Sprintf("metric vectors need at least %d bytes", minMetricBytes)}
	}
	return &MetricStrategy{n: n, tag: fmt.Sprintf("metric/%d", n)}, nil
}

// ID implements Strategy.
func (s *MetricStrategy) ID() StrategyID { return Metric }

// Size implements Strategy.
func (s *MetricStrategy) Size() int { return s.n }

// Profile implements Strategy.
func (s *MetricStrategy) Profile() Profile { return DefaultProfile(Metric) }

// CreateFromName implements Strategy.
func (s *MetricStrategy) CreateFromName(name, scope string) (Vector, error) {
	if name == "" {
		return nil, errors.New("metric: empty atom name")
	}
	st := newStream(s.tag, scope, name)
	data := make([]byte, s.n)
	var word uint64
	for i := range data {
		if i%8 == 0 {
			word = st.next()
		}
		data[i] = byte(word >> (8 * uint(i%8)))
	}
	return &MetricVector{data: data}, nil
}

func (s *MetricStrategy) check(v Vector) (*MetricVector, error) {
	m, ok := v.(*MetricVector)
	if !ok || m == nil {
		return nil, mismatch(Metric, v)
	}
	if len(m.data) != s.n {
		return nil, dimMismatch(Metric, "%d channels, want %d", len(m.data), s.n)
	}
	return m, nil
}

// Bind is byte-wise XOR.
func (s *MetricStrategy) Bind(a, b Vector) (Vector, error) {
	x, err := s.check(a)
	if err != nil {
		return nil, err
	}
	y, err := s.check(b)
	if err != nil {
		return nil, err
	}
	out := make([]byte, s.n)
	for i := range out {
		out[i] = x.data[i] ^ y.data[i]
	}
	return &MetricVector{data: out}, nil
}

// Unbind is Bind.
func (s *MetricStrategy) Unbind(composite, key Vector) (Vector, error) {
	return s.Bind(composite, key)
}

// Bundle is the per-channel mean, rounded half up.
func (s *MetricStrategy) Bundle(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.New("metric: bundle of zero vectors")
	}
	acc := s.NewAccumulator()
	for _, v := range vs {
		if err := acc.Add(v); err != nil {
			return nil, err
		}
	}
	out, _ := acc.Vector()
	return out, nil
}

// Similarity is 1 - L1/(255*n). Independent uniform channels differ by
// 255/3 on average, so unrelated vectors sit near 2/3.
func (s *MetricStrategy) Similarity(a, b Vector) (float64, error) {
	x, err := s.check(a)
	if err != nil {
		return 0, err
	}
	y, err := s.check(b)
	if err != nil {
		return 0, err
	}
	var l1 int
	for i := range x.data {
		d := int(x.data[i]) - int(y.data[i])
		if d < 0 {
			d = -d
		}
		l1 += d
	}
	return 1 - float64(l1)/(255*float64(s.n)), nil
}

// TopKSimilar implements Strategy.
func (s *MetricStrategy) TopKSimilar(q Vector, candidates []Candidate, k int) ([]Match, error) {
	return topK(s, q, candidates, k)
}

// NewAccumulator implements Strategy.
func (s *MetricStrategy) NewAccumulator() Accumulator {
	return &metricAccumulator{s: s, sums: make([]uint64, s.n)}
}

type metricAccumulator struct {
	s    *MetricStrategy
	sums []uint64
	n    uint64
}

func (a *metricAccumulator) Add(v Vector) error {
	m, err := a.s.check(v)
	if err != nil {
		return err
	}
	for i, b := range m.data {
		a.sums[i] += uint64(b)
	}
	a.n++
	return nil
}

func (a *metricAccumulator) Vector() (Vector, bool) {
	if a.n == 0 {
		return nil, false
	}
	out := make([]byte, len(a.sums))
	for i, sum := range a.sums {
		out[i] = byte((sum + a.n/2) / a.n)
	}
	return &MetricVector{data: out}, true
}

func (a *metricAccumulator) Count() int { return int(a.n) }

// Capacity compares a member's distance to the mean with an unrelated
// vector's. With d(m) the expected normalised distance between a uniform
// channel and the mean of m others (1/3 for m = 1, tending to 1/4), a
// member scores 1 - (n-1)/n * d(n-1) and an outsider 1 - d(n); the margin
// tends to 1/(4n). Channel noise has standard deviation sqrt(1/48)/sqrt(n).
func (s *MetricStrategy) Capacity(items int) CapacityReport {
	sigma := math.Sqrt(1.0/48.0) / math.Sqrt(float64(s.n))
	member := func(n int) float64 {
		if n <= 1 {
			return 1
		}
		return 1 - float64(n-1)/float64(n)*meanDistance(n-1)
	}
	margin := func(n int) float64 {
		if n <= 1 {
			return 1
		}
		return member(n) - (1 - meanDistance(n))
	}
	r := CapacityReport{
		Strategy:           Metric,
		Items:              items,
		ExpectedSimilarity: member(items),
		NoiseFloor:         1 - meanDistance(max(items, 1)) + 3*sigma,
		MaxItems:           largestAbove(margin, 3*sigma),
	}
	r.Saturated = items > r.MaxItems
	return r
}

func meanDistance(m int) float64 {
	if m <= 1 {
		return 1.0 / 3.0
	}
	return 0.25 + (1.0/3.0-0.25)/float64(m)
}
