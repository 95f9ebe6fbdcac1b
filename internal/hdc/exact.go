package hdc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

// monomial is a bitset of atom appearance indexes with trailing zero words
// trimmed, so equal sets have equal encodings.
type monomial []uint64

func singleton(idx int) monomial {
	m := make(monomial, idx/64+1)
	m[idx/64] = 1 << (uint(idx) % 64)
	return m
}

func (m monomial) or(o monomial) monomial {
	long, short := m, o
	if len(short) > len(long) {
		long, short = short, long
	}
	out := slices.Clone(long)
	for i, w := range short {
		out[i] |= w
	}
	return out
}

// contains reports m ⊇ q.
func (m monomial) contains(q monomial) bool {
	for i, w := range q {
		var have uint64
		if i < len(m) {
			have = m[i]
		}
		if have&w != w {
			return false
		}
	}
	return true
}

func (m monomial) without(q monomial) monomial {
	out := slices.Clone(m)
	for i := range out {
		if i < len(q) {
			out[i] &^= q[i]
		}
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// highest returns the largest index set, or -1 for the empty monomial.
func (m monomial) highest() int {
	if len(m) == 0 {
		return -1
	}
	last := len(m) - 1
	return last*64 + 63 - bits.LeadingZeros64(m[last])
}

func (m monomial) indexes() []int {
	var out []int
	for w, word := range m {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &= word - 1
		}
	}
	return out
}

func (m monomial) key() string {
	buf := make([]byte, 8*len(m))
	for i, w := range m {
		binary.BigEndian.PutUint64(buf[8*i:], w)
	}
	return string(buf)
}

// ExactVector is a lossless polynomial: a set of monomials.
type ExactVector struct {
	terms []monomial
	owner *exactTable
}

func (*ExactVector) isVector() {}

// Strategy implements Vector.
func (*ExactVector) Strategy() StrategyID { return Exact }

// Len is the number of monomials.
func (v *ExactVector) Len() int { return len(v.terms) }

// Equal implements Vector.
func (v *ExactVector) Equal(other Vector) bool {
	o, ok := other.(*ExactVector)
	if !ok || o.owner != v.owner || len(o.terms) != len(v.terms) {
		return false
	}
	for i := range v.terms {
		if !slices.Equal(v.terms[i], o.terms[i]) {
			return false
		}
	}
	return true
}

// exactTable is the session-local appearance-index allocator.
type exactTable struct {
	index map[string]int
	names []string
	max   int
}

// ExactStrategy is the lossless bitset-polynomial algebra. Each instance
// owns its atom table; two sessions never share indexes.
type ExactStrategy struct {
	table *exactTable
}

// NewExact builds an exact strategy that can allocate up to maxAtoms atoms.
func NewExact(maxAtoms int) (*ExactStrategy, error) {
	if maxAtoms <= 0 {
		maxAtoms = DefaultExactMaxAtom
	}
	if maxAtoms > 1<<24 {
		return nil, &ConfigError{Field: "size", Value: fmt.Sprint(maxAtoms),
			Reason: "exact atom table is limited to 16777216 atoms"}
	}
	return &ExactStrategy{table: &exactTable{index: make(map[string]int), max: maxAtoms}}, nil
}

// ID implements Strategy.
func (s *ExactStrategy) ID() StrategyID { return Exact }

// Size implements Strategy.
func (s *ExactStrategy) Size() int { return s.table.max }

// Profile implements Strategy.
func (s *ExactStrategy) Profile() Profile { return DefaultProfile(Exact) }

// Allocated is the number of atoms in the table.
func (s *ExactStrategy) Allocated() int { return len(s.table.names) }

func tableKey(name, scope string) string { return scope + "\x00" + name }

// CreateFromName allocates the next appearance index on first sight of
// (scope, name) and returns the single-monomial vector for it.
func (s *ExactStrategy) CreateFromName(name, scope string) (Vector, error) {
	if name == "" {
		return nil, errors.New("exact: empty atom name")
	}
	key := tableKey(name, scope)
	idx, ok := s.table.index[key]
	if !ok {
		if len(s.table.names) >= s.table.max {
			return nil, errors.WithStack(&CapacityError{Limit: s.table.max})
		}
		idx = len(s.table.names)
		s.table.index[key] = idx
		s.table.names = append(s.table.names, name)
	}
	return &ExactVector{terms: []monomial{singleton(idx)}, owner: s.table}, nil
}

// Lookup returns the vector of an atom that already exists, without
// allocating.
func (s *ExactStrategy) Lookup(name, scope string) (Vector, error) {
	idx, ok := s.table.index[tableKey(name, scope)]
	if !ok {
		return nil, errors.WithStack(&UnboundReferenceError{Name: name})
	}
	return &ExactVector{terms: []monomial{singleton(idx)}, owner: s.table}, nil
}

// Monomials renders v as atom names per monomial, for diagnostics.
func (s *ExactStrategy) Monomials(v Vector) ([][]string, error) {
	ev, err := s.check(v)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(ev.terms))
	for i, m := range ev.terms {
		for _, idx := range m.indexes() {
			out[i] = append(out[i], s.table.names[idx])
		}
	}
	return out, nil
}

func (s *ExactStrategy) check(v Vector) (*ExactVector, error) {
	ev, ok := v.(*ExactVector)
	if !ok || ev == nil {
		return nil, mismatch(Exact, v)
	}
	if ev.owner != s.table {
		return nil, dimMismatch(Exact, "vector belongs to another session's atom table")
	}
	for _, m := range ev.terms {
		if hi := m.highest(); hi >= len(s.table.names) {
			return nil, errors.WithStack(&UnboundReferenceError{Name: fmt.Sprintf("#%d", hi)})
		}
	}
	return ev, nil
}

// normalize deduplicates and orders monomials by their encoding.
func (s *ExactStrategy) normalize(terms []monomial) *ExactVector {
	seen := make(map[string]bool, len(terms))
	out := make([]monomial, 0, len(terms))
	for _, m := range terms {
		k := m.key()
		if !seen[k] {
			seen[k] = true
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b monomial) int { return strings.Compare(a.key(), b.key()) })
	return &ExactVector{terms: out, owner: s.table}
}

// Bind is the cross product of monomials, each pair OR-ed.
func (s *ExactStrategy) Bind(a, b Vector) (Vector, error) {
	x, err := s.check(a)
	if err != nil {
		return nil, err
	}
	y, err := s.check(b)
	if err != nil {
		return nil, err
	}
	prod := make([]monomial, 0, len(x.terms)*len(y.terms))
	for _, p := range x.terms {
		for _, q := range y.terms {
			prod = append(prod, p.or(q))
		}
	}
	return s.normalize(prod), nil
}

// Bundle is lossless union.
func (s *ExactStrategy) Bundle(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.New("exact: bundle of zero vectors")
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

// Unbind is the quotient, not an inverse of Bind: for every monomial q of
// key and every monomial t of composite with t ⊇ q it yields t \ q. A
// composite without a superset of the key yields the empty polynomial.
func (s *ExactStrategy) Unbind(composite, key Vector) (Vector, error) {
	c, err := s.check(composite)
	if err != nil {
		return nil, err
	}
	k, err := s.check(key)
	if err != nil {
		return nil, err
	}
	var out []monomial
	for _, q := range k.terms {
		for _, t := range c.terms {
			if t.contains(q) {
				out = append(out, t.without(q))
			}
		}
	}
	return s.normalize(out), nil
}

// Similarity is the Jaccard index over monomial sets.
func (s *ExactStrategy) Similarity(a, b Vector) (float64, error) {
	x, err := s.check(a)
	if err != nil {
		return 0, err
	}
	y, err := s.check(b)
	if err != nil {
		return 0, err
	}
	if len(x.terms) == 0 && len(y.terms) == 0 {
		return 1, nil
	}
	keys := make(map[string]bool, len(x.terms))
	for _, m := range x.terms {
		keys[m.key()] = true
	}
	inter := 0
	for _, m := range y.terms {
		if keys[m.key()] {
			inter++
		}
	}
	return float64(inter) / float64(len(x.terms)+len(y.terms)-inter), nil
}

// TopKSimilar implements Strategy.
func (s *ExactStrategy) TopKSimilar(q Vector, candidates []Candidate, k int) ([]Match, error) {
	return topK(s, q, candidates, k)
}

// NewAccumulator implements Strategy.
func (s *ExactStrategy) NewAccumulator() Accumulator {
	return &exactAccumulator{s: s, seen: make(map[string]bool)}
}

type exactAccumulator struct {
	s     *ExactStrategy
	terms []monomial
	seen  map[string]bool
	n     int
}

func (a *exactAccumulator) Add(v Vector) error {
	ev, err := a.s.check(v)
	if err != nil {
		return err
	}
	for _, m := range ev.terms {
		if k := m.key(); !a.seen[k] {
			a.seen[k] = true
			a.terms = append(a.terms, m)
		}
	}
	a.n++
	return nil
}

func (a *exactAccumulator) Vector() (Vector, bool) {
	if a.n == 0 {
		return nil, false
	}
	return a.s.normalize(a.terms), true
}

func (a *exactAccumulator) Count() int { return a.n }

// exactSaturation is the table fill ratio past which Capacity reports
// saturation.
const exactSaturation = 0.9

// Capacity: bundling is lossless, so the limit is the atom table, not the
// bundle size. A single-monomial member of an n-monomial bundle scores 1/n.
func (s *ExactStrategy) Capacity(items int) CapacityReport {
	r := CapacityReport{
		Strategy:           Exact,
		Items:              items,
		MaxItems:           s.table.max,
		ExpectedSimilarity: 1,
	}
	if items > 1 {
		r.ExpectedSimilarity = 1 / float64(items)
	}
	r.Saturated = float64(len(s.table.names)) >= exactSaturation*float64(s.table.max)
	return r
}
