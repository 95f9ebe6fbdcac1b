package hdc

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
)

// SparseVector is a small set of 64-bit integers, kept sorted by value.
type SparseVector struct {
	elems []uint64
	k     int
}

func (*SparseVector) isVector() {}

// Strategy implements Vector.
func (*SparseVector) Strategy() StrategyID { return Sparse }

// Len is the set size.
func (v *SparseVector) Len() int { return len(v.elems) }

// Equal implements Vector.
func (v *SparseVector) Equal(other Vector) bool {
	o, ok := other.(*SparseVector)
	return ok && o.k == v.k && slices.Equal(o.elems, v.elems)
}

// SparseStrategy is the integer-set ("polynomial") algebra.
//
// Sets are capped at k members. Every reduction keeps the k members with
// the smallest mix64 hash: a min-hash sample. XOR scatters values, so a
// magnitude cut would keep an arbitrary, relationship-destroying subset;
// the hash sample is consistent, so two sets sharing members tend to keep
// the same shared members.
type SparseStrategy struct {
	k   int
	tag string
}

const maxSparseK = 4096

// NewSparse builds a sparse strategy with set size k.
func NewSparse(k int) (*SparseStrategy, error) {
	if k <= 0 {
		k = DefaultSparseK
	}
	if k < 2 || k > maxSparseK {
		return nil, &ConfigError{Field: "size", Value: fmt.Sprint(k),
			Reason: fmt.Sprintf("sparse set size must lie in [2, %d]", maxSparseK)}
	}
	return &SparseStrategy{k: k, tag: fmt.Sprintf("sparse/%d", k)}, nil
}

// ID implements Strategy.
func (s *SparseStrategy) ID() StrategyID { return Sparse }

// Size implements Strategy.
func (s *SparseStrategy) Size() int { return s.k }

// Profile implements Strategy.
func (s *SparseStrategy) Profile() Profile { return DefaultProfile(Sparse) }

// CreateFromName implements Strategy.
func (s *SparseStrategy) CreateFromName(name, scope string) (Vector, error) {
	if name == "" {
		return nil, errors.New("sparse: empty atom name")
	}
	st := newStream(s.tag, scope, name)
	seen := make(map[uint64]bool, s.k)
	elems := make([]uint64, 0, s.k)
	for len(elems) < s.k {
		x := st.next()
		if !seen[x] {
			seen[x] = true
			elems = append(elems, x)
		}
	}
	slices.Sort(elems)
	return &SparseVector{elems: elems, k: s.k}, nil
}

func (s *SparseStrategy) check(v Vector) (*SparseVector, error) {
	sv, ok := v.(*SparseVector)
	if !ok || sv == nil {
		return nil, mismatch(Sparse, v)
	}
	if sv.k != s.k {
		return nil, dimMismatch(Sparse, "set size %d, want %d", sv.k, s.k)
	}
	return sv, nil
}

// sample deduplicates elems and keeps at most k members by min-hash.
func (s *SparseStrategy) sample(elems []uint64) []uint64 {
	slices.Sort(elems)
	elems = slices.Compact(elems)
	if len(elems) <= s.k {
		return elems
	}
	slices.SortFunc(elems, func(a, b uint64) int {
		ha, hb := mix64(a), mix64(b)
		switch {
		case ha < hb:
			return -1
		case ha > hb:
			return 1
		}
		return 0
	})
	out := slices.Clone(elems[:s.k])
	slices.Sort(out)
	return out
}

// Bind is the pairwise XOR of both sets, sampled down to k.
func (s *SparseStrategy) Bind(a, b Vector) (Vector, error) {
	x, err := s.check(a)
	if err != nil {
		return nil, err
	}
	y, err := s.check(b)
	if err != nil {
		return nil, err
	}
	prod := make([]uint64, 0, len(x.elems)*len(y.elems))
	for _, p := range x.elems {
		for _, q := range y.elems {
			prod = append(prod, p^q)
		}
	}
	return &SparseVector{elems: s.sample(prod), k: s.k}, nil
}

// Unbind is Bind. XOR pairs cancel, so the sampled residue shares members
// with the original operand; recovery is partial, see Capacity.
func (s *SparseStrategy) Unbind(composite, key Vector) (Vector, error) {
	return s.Bind(composite, key)
}

// Bundle is set union, sampled down to k.
func (s *SparseStrategy) Bundle(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.New("sparse: bundle of zero vectors")
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

// Similarity is the Jaccard index. Random 64-bit members practically never
// collide, so unrelated sets score 0.
func (s *SparseStrategy) Similarity(a, b Vector) (float64, error) {
	x, err := s.check(a)
	if err != nil {
		return 0, err
	}
	y, err := s.check(b)
	if err != nil {
		return 0, err
	}
	if len(x.elems) == 0 && len(y.elems) == 0 {
		return 1, nil
	}
	inter := 0
	i, j := 0, 0
	for i < len(x.elems) && j < len(y.elems) {
		switch {
		case x.elems[i] == y.elems[j]:
			inter++
			i++
			j++
		case x.elems[i] < y.elems[j]:
			i++
		default:
			j++
		}
	}
	union := len(x.elems) + len(y.elems) - inter
	return float64(inter) / float64(union), nil
}

// TopKSimilar implements Strategy.
func (s *SparseStrategy) TopKSimilar(q Vector, candidates []Candidate, k int) ([]Match, error) {
	return topK(s, q, candidates, k)
}

// NewAccumulator implements Strategy. The k smallest hashes of a union are
// the k smallest of (the k smallest so far) plus the new set, so the
// incremental result equals the batch one.
func (s *SparseStrategy) NewAccumulator() Accumulator {
	return &sparseAccumulator{s: s}
}

type sparseAccumulator struct {
	s     *SparseStrategy
	elems []uint64
	n     int
}

func (a *sparseAccumulator) Add(v Vector) error {
	sv, err := a.s.check(v)
	if err != nil {
		return err
	}
	merged := make([]uint64, 0, len(a.elems)+len(sv.elems))
	merged = append(merged, a.elems...)
	merged = append(merged, sv.elems...)
	a.elems = a.s.sample(merged)
	a.n++
	return nil
}

func (a *sparseAccumulator) Vector() (Vector, bool) {
	if a.n == 0 {
		return nil, false
	}
	return &SparseVector{elems: slices.Clone(a.elems), k: a.s.k}, true
}

func (a *sparseAccumulator) Count() int { return a.n }

// Capacity: a bundle of n sets keeps about k/n members of each, giving a
// member Jaccard of 1/(2n-1). Past n = k a member expects to keep less
// than one element and drops out. The noise floor is 0: unrelated members
// do not collide.
func (s *SparseStrategy) Capacity(items int) CapacityReport {
	r := CapacityReport{
		Strategy:           Sparse,
		Items:              items,
		MaxItems:           s.k,
		ExpectedSimilarity: 1,
	}
	if items > 1 {
		r.ExpectedSimilarity = 1 / float64(2*items-1)
	}
	r.Saturated = items > r.MaxItems
	return r
}
