package hdc

import (
	"sort"
	"strings"
)

// StrategyID names a vector algebra.
type StrategyID string

const (
	Dense  StrategyID = "dense"
	Sparse StrategyID = "sparse"
	Metric StrategyID = "metric"
	Exact  StrategyID = "exact"
)

// Strategies lists every supported algebra in a stable order.
var Strategies = []StrategyID{Dense, Sparse, Metric, Exact}

// Default sizing parameters.
const (
	DefaultDenseBits    = 8192
	DefaultSparseK      = 16
	DefaultMetricBytes  = 1024
	DefaultExactMaxAtom = 65536
)

// Vector is an opaque value produced by a Strategy.
//
// Sealed: only this package implements it.
type Vector interface {
	// Strategy returns the algebra that produced the vector.
	Strategy() StrategyID

	// Len is the number of components: bits for dense, bytes for metric,
	// set members for sparse, monomials for exact.
	Len() int

	// Equal reports exact component equality.
	Equal(other Vector) bool

	isVector()
}

// Strategy is the vector algebra contract.
//
// All operations are synchronous and pure over their inputs, with one
// exception: the exact strategy's CreateFromName allocates an appearance
// index on first sight of a (scope, name) pair. A Strategy value is owned
// by one session and must not be shared.
type Strategy interface {
	ID() StrategyID

	// Size is the sizing parameter the strategy was built with.
	Size() int

	// Profile returns the similarity bands for this algebra.
	Profile() Profile

	// CreateFromName returns the atom vector for name within scope.
	CreateFromName(name, scope string) (Vector, error)

	// Bind associates two vectors (role with filler).
	Bind(a, b Vector) (Vector, error)

	// Bundle superposes vectors. At least one vector is required.
	Bundle(vs []Vector) (Vector, error)

	// Similarity returns a score in [0,1]; 1 for identical vectors.
	Similarity(a, b Vector) (float64, error)

	// Unbind recovers the residue of composite with key removed.
	Unbind(composite, key Vector) (Vector, error)

	// TopKSimilar ranks candidates by similarity to q, best first, ties
	// broken by name. k <= 0 returns every candidate.
	TopKSimilar(q Vector, candidates []Candidate, k int) ([]Match, error)

	// NewAccumulator returns an empty incremental bundle. Feeding it the
	// vectors one by one yields exactly Bundle of the same vectors.
	NewAccumulator() Accumulator

	// Capacity estimates retrieval quality for a bundle of items vectors.
	Capacity(items int) CapacityReport
}

// Candidate is a named vector offered to TopKSimilar.
type Candidate struct {
	Name   string
	Vector Vector
}

// Match is one ranked TopKSimilar result.
type Match struct {
	Name       string  `json:"name" yaml:"name"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

// Accumulator maintains a bundle incrementally.
type Accumulator interface {
	// Add folds v into the bundle.
	Add(v Vector) error

	// Vector returns the current bundle; ok is false when nothing was added.
	Vector() (v Vector, ok bool)

	// Count is the number of vectors added.
	Count() int
}

// CapacityReport is a saturation estimate for a bundle.
type CapacityReport struct {
	Strategy StrategyID `json:"strategy"`
	Items    int        `json:"items"`

	// MaxItems is the largest bundle whose members still stand out from
	// the noise floor.
	MaxItems int `json:"max_items"`

	// ExpectedSimilarity of one member to a bundle of Items vectors.
	ExpectedSimilarity float64 `json:"expected_similarity"`

	// NoiseFloor is the similarity an unrelated vector reaches with
	// three standard deviations of luck.
	NoiseFloor float64 `json:"noise_floor"`

	Saturated bool `json:"saturated"`
}

// New builds a strategy by id. size <= 0 selects the default sizing.
func New(id StrategyID, size int) (Strategy, error) {
	switch id {
	case Dense:
		return NewDense(size)
	case Sparse:
		return NewSparse(size)
	case Metric:
		return NewMetric(size)
	case Exact:
		return NewExact(size)
	default:
		return nil, &ConfigError{Field: "strategy", Value: string(id),
			Reason: "must be one of " + strategyList()}
	}
}

// ParseStrategyID validates a strategy name.
func ParseStrategyID(s string) (StrategyID, error) {
	id := StrategyID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Strategies {
		if id == known {
			return id, nil
		}
	}
	return "", &ConfigError{Field: "strategy", Value: s, Reason: "must be one of " + strategyList()}
}

func strategyList() string {
	names := make([]string, len(Strategies))
	for i, id := range Strategies {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

// topK is the shared ranking used by every strategy.
func topK(s Strategy, q Vector, candidates []Candidate, k int) ([]Match, error) {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		sim, err := s.Similarity(q, c.Vector)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Name: c.Name, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Name < matches[j].Name
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
