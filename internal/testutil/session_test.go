package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/kb"
)

func TestNewSession_IDIsTestName(t *testing.T) {
	s := NewSession(t, hdc.Sparse)
	assert.Equal(t, t.Name(), s.ID())
	assert.Equal(t, hdc.Sparse, s.Strategy().ID())
}

func TestLearn(t *testing.T) {
	s := NewSession(t, hdc.Exact)
	refs := Learn(t, s,
		"isA Tweety Bird",
		"@c isA ?x Bird",
		"Implies (isA ?x Bird) (canFly ?x)",
	)
	require.Len(t, refs, 3)
	assert.Equal(t, int64(1), refs[0].Seq)
	assert.Zero(t, refs[1].Seq)
	assert.Equal(t, kb.KindRule, refs[2].Kind)
	assert.Equal(t, 2, s.Len())
}

func TestFact(t *testing.T) {
	f := Fact(t, 3, "Not (canFly Opus)")
	assert.Equal(t, int64(3), f.Seq)
	assert.Equal(t, kb.KindNegation, f.Kind)
	assert.Equal(t, "Not (canFly Opus)", f.Term.String())
	assert.Len(t, f.ID, 64)
}
