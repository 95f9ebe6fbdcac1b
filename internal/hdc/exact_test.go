package hdc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExact(t *testing.T, atoms ...string) (*ExactStrategy, map[string]Vector) {
	t.Helper()
	s, err := NewExact(0)
	require.NoError(t, err)
	out := make(map[string]Vector, len(atoms))
	for _, a := range atoms {
		out[a] = mustAtom(t, s, a)
	}
	return s, out
}

// The quotient is exercised on a hand-built polynomial so the test does not
// lean on Bind.
func TestExactQuotient(t *testing.T) {
	s, v := newExact(t, "a", "b", "c", "d", "e")
	composite := s.normalize([]monomial{
		singleton(0).or(singleton(1)),                  // a·b
		singleton(0).or(singleton(2)),                  // a·c
		singleton(3),                                   // d
		singleton(1).or(singleton(2)).or(singleton(3)), // b·c·d
	})

	got, err := s.Unbind(composite, v["a"])
	require.NoError(t, err)
	names, err := s.Monomials(got)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]string{{"b"}, {"c"}}, names)

	got, err = s.Unbind(composite, v["d"])
	require.NoError(t, err)
	names, err = s.Monomials(got)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]string{nil, {"b", "c"}}, names, "d itself leaves the empty monomial")

	got, err = s.Unbind(composite, v["e"])
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len(), "no superset of e")
}

func TestExactBindIsCrossProduct(t *testing.T) {
	s, v := newExact(t, "a", "b", "c")
	ab, err := s.Bundle([]Vector{v["a"], v["b"]})
	require.NoError(t, err)

	got, err := s.Bind(ab, v["c"])
	require.NoError(t, err)
	names, err := s.Monomials(got)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]string{{"a", "c"}, {"b", "c"}}, names)
}

func TestExactBundleIsLossless(t *testing.T) {
	s, err := NewExact(0)
	require.NoError(t, err)

	var facts []Vector
	for _, pair := range [][2]string{{"isA", "Tweety"}, {"isA", "Opus"}, {"likes", "Mary"}} {
		f, err := s.Bind(mustAtom(t, s, pair[0]), mustAtom(t, s, pair[1]))
		require.NoError(t, err)
		facts = append(facts, f)
	}
	agg, err := s.Bundle(facts)
	require.NoError(t, err)

	residue, err := s.Unbind(agg, mustAtom(t, s, "isA"))
	require.NoError(t, err)
	names, err := s.Monomials(residue)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]string{{"Tweety"}, {"Opus"}}, names)
}

func TestExactTablesAreSessionLocal(t *testing.T) {
	s1, v1 := newExact(t, "x", "y")
	s2, v2 := newExact(t, "y", "x")

	n1, err := s1.Monomials(v1["x"])
	require.NoError(t, err)
	n2, err := s2.Monomials(v2["x"])
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	_, err = s1.Similarity(v1["x"], v2["x"])
	require.Error(t, err)
	assert.True(t, IsMismatchError(err), "vectors do not cross sessions")
}

func TestExactParallelSessions(t *testing.T) {
	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := NewExact(0)
			if err != nil {
				return
			}
			for _, n := range []string{"p", "q", "r"} {
				if _, err := s.CreateFromName(n, testScope); err != nil {
					return
				}
			}
			v, _ := s.Lookup("r", testScope)
			names, _ := s.Monomials(v)
			if len(names) == 1 {
				results[i] = names[0]
			}
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		assert.Equal(t, []string{"r"}, r, "session %d", i)
	}
}

func TestExactLookupUnbound(t *testing.T) {
	s, _ := newExact(t, "known")
	_, err := s.Lookup("unknown", testScope)
	require.Error(t, err)
	assert.True(t, IsUnboundReferenceError(err))
}

func TestExactUnallocatedIndex(t *testing.T) {
	s, v := newExact(t, "a")
	forged := &ExactVector{terms: []monomial{singleton(99)}, owner: s.table}

	_, err := s.Bind(v["a"], forged)
	require.Error(t, err)
	assert.True(t, IsUnboundReferenceError(err))
}

func TestExactCapacityError(t *testing.T) {
	s, err := NewExact(2)
	require.NoError(t, err)
	mustAtom(t, s, "one")
	mustAtom(t, s, "two")
	mustAtom(t, s, "one")

	_, err = s.CreateFromName("three", testScope)
	require.Error(t, err)
	assert.True(t, IsCapacityError(err))
	assert.True(t, s.Capacity(0).Saturated)
	assert.Equal(t, 2, s.Allocated())
}
