package hdc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three unrelated facts bundled under the dense algebra: each member keeps
// three quarters of its bits in the majority vote, well clear of the 0.5
// baseline an outsider scores.
func TestDenseBundleCapacityMargin(t *testing.T) {
	s, err := NewDense(0)
	require.NoError(t, err)

	facts := make([]Vector, 3)
	for i := range facts {
		rel := mustAtom(t, s, fmt.Sprintf("rel%d", i))
		arg := mustAtom(t, s, fmt.Sprintf("arg%d", i))
		facts[i], err = s.Bind(rel, arg)
		require.NoError(t, err)
	}
	aggregate, err := s.Bundle(facts)
	require.NoError(t, err)

	for i, f := range facts {
		sim, err := s.Similarity(aggregate, f)
		require.NoError(t, err)
		assert.Greater(t, sim, 0.5+0.15, "fact %d", i)
		assert.InDelta(t, s.Capacity(3).ExpectedSimilarity, sim, 0.03)
	}

	outsider, err := s.Similarity(aggregate, mustAtom(t, s, "outsider"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, outsider, 0.03)
}

func TestDenseTieBreakIsDeterministic(t *testing.T) {
	s1, err := NewDense(256)
	require.NoError(t, err)
	s2, err := NewDense(256)
	require.NoError(t, err)

	b1, err := s1.Bundle([]Vector{mustAtom(t, s1, "a"), mustAtom(t, s1, "b")})
	require.NoError(t, err)
	b2, err := s2.Bundle([]Vector{mustAtom(t, s2, "a"), mustAtom(t, s2, "b")})
	require.NoError(t, err)
	assert.True(t, b1.Equal(b2))
}

func TestDenseCapacity(t *testing.T) {
	s, err := NewDense(0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.Capacity(1).ExpectedSimilarity)
	assert.InDelta(t, 0.75, s.Capacity(2).ExpectedSimilarity, 1e-9)
	assert.InDelta(t, 0.75, s.Capacity(3).ExpectedSimilarity, 1e-9)
	assert.InDelta(t, 0.6875, s.Capacity(5).ExpectedSimilarity, 1e-9)

	r := s.Capacity(10)
	assert.False(t, r.Saturated)
	assert.Greater(t, r.MaxItems, 400)
	assert.Less(t, r.MaxItems, 700)
	assert.True(t, s.Capacity(r.MaxItems+1).Saturated)

	small, err := NewDense(64)
	require.NoError(t, err)
	assert.Less(t, small.Capacity(0).MaxItems, r.MaxItems, "narrower vectors saturate sooner")
}
