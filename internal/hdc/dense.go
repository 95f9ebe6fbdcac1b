package hdc

import (
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
)

// DenseVector is a fixed-width bit vector.
type DenseVector struct {
	words []uint64
	bits  int
}

func (*DenseVector) isVector() {}

// Strategy implements Vector.
func (*DenseVector) Strategy() StrategyID { return Dense }

// Len is the width in bits.
func (v *DenseVector) Len() int { return v.bits }

// Equal implements Vector.
func (v *DenseVector) Equal(other Vector) bool {
	o, ok := other.(*DenseVector)
	return ok && o.bits == v.bits && slices.Equal(o.words, v.words)
}

// DenseStrategy is the binary spatter-code algebra: XOR bind, per-bit
// majority bundle, Hamming similarity.
type DenseStrategy struct {
	bits  int
	words int
	tag   string

	// tie breaks even-count majority votes. It is derived from a reserved
	// name so bundles are reproducible.
	tie *DenseVector
}

// NewDense builds a dense strategy. bits must be a positive multiple of 64.
func NewDense(bits int) (*DenseStrategy, error) {
	if bits <= 0 {
		bits = DefaultDenseBits
	}
	if bits%64 != 0 {
		return nil, &ConfigError{Field: "size", Value: fmt.Sprint(bits),
			Reason: "dense width must be a multiple of 64"}
	}
	s := &DenseStrategy{bits: bits, words: bits / 64, tag: fmt.Sprintf("dense/%d", bits)}
	s.tie = s.generate("tie", tieScope)
	return s, nil
}

// ID implements Strategy.
func (s *DenseStrategy) ID() StrategyID { return Dense }

// Size implements Strategy.
func (s *DenseStrategy) Size() int { return s.bits }

// Profile implements Strategy.
func (s *DenseStrategy) Profile() Profile { return DefaultProfile(Dense) }

// CreateFromName implements Strategy.
func (s *DenseStrategy) CreateFromName(name, scope string) (Vector, error) {
	if name == "" {
		return nil, errors.New("dense: empty atom name")
	}
	return s.generate(name, scope), nil
}

func (s *DenseStrategy) generate(name, scope string) *DenseVector {
	st := newStream(s.tag, scope, name)
	words := make([]uint64, s.words)
	for i := range words {
		words[i] = st.next()
	}
	return &DenseVector{words: words, bits: s.bits}
}

func (s *DenseStrategy) check(v Vector) (*DenseVector, error) {
	d, ok := v.(*DenseVector)
	if !ok || d == nil {
		return nil, mismatch(Dense, v)
	}
	if d.bits != s.bits {
		return nil, dimMismatch(Dense, "width %d, want %d", d.bits, s.bits)
	}
	return d, nil
}

// Bind is bitwise XOR: self-inverse, associative, commutative.
func (s *DenseStrategy) Bind(a, b Vector) (Vector, error) {
	x, err := s.check(a)
	if err != nil {
		return nil, err
	}
	y, err := s.check(b)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, s.words)
	for i := range out {
		out[i] = x.words[i] ^ y.words[i]
	}
	return &DenseVector{words: out, bits: s.bits}, nil
}

// Unbind is Bind: XOR is its own inverse.
func (s *DenseStrategy) Unbind(composite, key Vector) (Vector, error) {
	return s.Bind(composite, key)
}

// Bundle is the per-bit majority vote; ties take the tie vector's bit.
func (s *DenseStrategy) Bundle(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.New("dense: bundle of zero vectors")
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

// Similarity is 1 - Hamming/width. Unrelated vectors sit near 0.5.
func (s *DenseStrategy) Similarity(a, b Vector) (float64, error) {
	x, err := s.check(a)
	if err != nil {
		return 0, err
	}
	y, err := s.check(b)
	if err != nil {
		return 0, err
	}
	diff := 0
	for i := range x.words {
		diff += bits.OnesCount64(x.words[i] ^ y.words[i])
	}
	return 1 - float64(diff)/float64(s.bits), nil
}

// TopKSimilar implements Strategy.
func (s *DenseStrategy) TopKSimilar(q Vector, candidates []Candidate, k int) ([]Match, error) {
	return topK(s, q, candidates, k)
}

// NewAccumulator implements Strategy.
func (s *DenseStrategy) NewAccumulator() Accumulator {
	return &denseAccumulator{s: s, counts: make([]int32, s.bits)}
}

type denseAccumulator struct {
	s      *DenseStrategy
	counts []int32
	n      int
}

func (a *denseAccumulator) Add(v Vector) error {
	d, err := a.s.check(v)
	if err != nil {
		return err
	}
	for w, word := range d.words {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			a.counts[w*64+b]++
			word &= word - 1
		}
	}
	a.n++
	return nil
}

func (a *denseAccumulator) Vector() (Vector, bool) {
	if a.n == 0 {
		return nil, false
	}
	out := make([]uint64, a.s.words)
	for i, c := range a.counts {
		twice := int(c) * 2
		var set bool
		switch {
		case twice > a.n:
			set = true
		case twice == a.n:
			set = a.s.tie.words[i/64]&(1<<(uint(i)%64)) != 0
		}
		if set {
			out[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return &DenseVector{words: out, bits: a.s.bits}, true
}

func (a *denseAccumulator) Count() int { return a.n }

// Capacity estimates the majority-vote margin of a member over the noise
// floor. For a bundle of n random vectors a member agrees with the result
// on a fraction 1/2 + C(n-1, floor((n-1)/2)) / 2^n of bits; an unrelated
// vector agrees on 1/2 with standard deviation 1/(2*sqrt(width)).
func (s *DenseStrategy) Capacity(items int) CapacityReport {
	floor := 0.5 + 3*0.5/math.Sqrt(float64(s.bits))
	r := CapacityReport{
		Strategy:   Dense,
		Items:      items,
		NoiseFloor: floor,
		MaxItems:   largestAbove(func(n int) float64 { return 0.5 + majorityMargin(n) }, floor),
	}
	r.ExpectedSimilarity = 1
	if items > 1 {
		r.ExpectedSimilarity = 0.5 + majorityMargin(items)
	}
	r.Saturated = items > r.MaxItems
	return r
}

func majorityMargin(n int) float64 {
	if n <= 1 {
		return 0.5
	}
	k := (n - 1) / 2
	lg := func(x int) float64 {
		v, _ := math.Lgamma(float64(x) + 1)
		return v
	}
	return math.Exp(lg(n-1) - lg(k) - lg(n-1-k) - float64(n)*math.Ln2)
}

// largestAbove finds the largest n whose expected similarity still reaches
// floor, for a non-increasing expectation.
func largestAbove(expected func(n int) float64, floor float64) int {
	if expected(1) < floor {
		return 0
	}
	lo, hi := 1, 1<<24
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if expected(mid) >= floor {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
