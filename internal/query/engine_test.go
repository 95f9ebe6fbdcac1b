package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperlore/internal/encode"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

type fixture struct {
	enc    *encode.Encoder
	store  *kb.Store
	engine *Engine
}

func newFixture(t *testing.T, id hdc.StrategyID, opts Options, facts ...string) *fixture {
	t.Helper()
	return newSizedFixture(t, id, 0, opts, facts...)
}

func newSizedFixture(t *testing.T, id hdc.StrategyID, size int, opts Options, facts ...string) *fixture {
	t.Helper()
	alg, err := hdc.New(id, size)
	require.NoError(t, err)
	enc, err := encode.New(alg)
	require.NoError(t, err)
	f := &fixture{enc: enc, store: kb.New(alg)}
	for _, line := range facts {
		f.learn(t, line)
	}
	f.engine = New(enc, f.store, opts, nil)
	return f
}

func (f *fixture) learn(t *testing.T, line string) kb.FactRef {
	t.Helper()
	p := ir.MustParsePattern(line)
	term := p.Term()
	vec, err := f.enc.EncodeTerm(term)
	require.NoError(t, err)
	ref, err := f.store.Add(term, vec, "")
	require.NoError(t, err)
	return ref
}

func forEachStrategy(t *testing.T, fn func(t *testing.T, id hdc.StrategyID)) {
	for _, id := range hdc.Strategies {
		t.Run(string(id), func(t *testing.T) { fn(t, id) })
	}
}

func TestQuery_FillsHoles(t *testing.T) {
	f := newFixture(t, hdc.Exact, Options{},
		"sell Carol Dave Bike 50",
		"buy Bob Alice Car",
	)
	ref := f.learn(t, "sell Alice Bob Car 100")

	res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, OutcomeMatch, res.Outcome)
	assert.Equal(t, Bindings{"who": "Alice", "price": "100"}, res.Values())
	assert.Equal(t, ref.Seq, res.Support)

	// Two sell facts share the aggregate: each hole decodes to its value
	// and one rival, so recall is 1/2.
	assert.InDelta(t, 0.5, res.Bindings["who"].Similarity, 1e-9)
	assert.InDelta(t, 0.5, res.Bindings["price"].Similarity, 1e-9)
	assert.InDelta(t, 0.5*(1-HolePenalty), res.Confidence, 1e-9)
	assert.Equal(t, hdc.BandGood, res.Band)
	assert.Equal(t, []hdc.Match{{Name: "Carol", Similarity: 0.5}}, res.Bindings["who"].Alternatives)
}

func TestQuery_SingleFactDecodesCleanly(t *testing.T) {
	f := newFixture(t, hdc.Exact, Options{}, "sell Alice Bob Car 100")

	res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatch, res.Outcome)
	assert.InDelta(t, 1.0, res.Bindings["who"].Similarity, 1e-9)
	assert.InDelta(t, 1-HolePenalty, res.Confidence, 1e-9)
	assert.Equal(t, hdc.BandStrong, res.Band)
	assert.Empty(t, res.Bindings["who"].Alternatives)
}

func TestQuery_DenseConfidenceIsDecodeSimilarity(t *testing.T) {
	f := newFixture(t, hdc.Dense, Options{}, "sell Alice Bob Car 100")

	res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
	require.NoError(t, err)

	require.True(t, res.Success)
	assert.Equal(t, Bindings{"who": "Alice", "price": "100"}, res.Values())
	who, price := res.Bindings["who"].Similarity, res.Bindings["price"].Similarity
	// A bundle of four role-filler pairs leaves each filler well above
	// chance but far from identical.
	for _, sim := range []float64{who, price} {
		assert.Greater(t, sim, 0.6)
		assert.Less(t, sim, 0.8)
	}
	assert.InDelta(t, (who+price)/2*(1-HolePenalty), res.Confidence, 1e-9)
	assert.Equal(t, hdc.BandWeak, res.Band)
}

func TestQuery_SaturatedAggregateLowersConfidence(t *testing.T) {
	const width = 512
	clean := newSizedFixture(t, hdc.Dense, width, Options{}, "sell Alice Bob Car 100")
	pattern := ir.MustParsePattern("sell ?who Bob Car ?price")
	baseline, err := clean.engine.Query(pattern)
	require.NoError(t, err)
	require.True(t, baseline.Success)

	crowded := newSizedFixture(t, hdc.Dense, width, Options{}, "sell Alice Bob Car 100")
	for i := range 300 {
		crowded.learn(t, fmt.Sprintf("sell s%d b%d i%d p%d", i, i, i, i))
	}
	require.True(t, crowded.store.Capacity().Saturated)

	res, err := crowded.engine.Query(pattern)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Less(t, res.Confidence, baseline.Confidence)
	assert.Less(t, res.Bindings["who"].Similarity, baseline.Bindings["who"].Similarity)

	// Verifying a ground fact does not depend on the aggregate.
	res, err = crowded.engine.Query(ir.MustParsePattern("sell Alice Bob Car 100"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestQuery_MetadataAloneDoesNotAnswer(t *testing.T) {
	f := newFixture(t, hdc.Exact, Options{})
	claimed := ir.MustParsePattern("sell Alice Bob Car 100").Term()
	_, err := f.enc.EncodeTerm(claimed)
	require.NoError(t, err)
	other, err := f.enc.EncodeTerm(ir.MustParsePattern("sell Carol Dave Bike 50").Term())
	require.NoError(t, err)
	_, err = f.store.Add(claimed, other, "")
	require.NoError(t, err)

	res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome, "the vector decodes to Carol and 50, which the fact does not confirm")
}

func TestQuery_LossyStrategiesNeverSucceed(t *testing.T) {
	for _, id := range []hdc.StrategyID{hdc.Sparse, hdc.Metric} {
		t.Run(string(id), func(t *testing.T) {
			f := newFixture(t, id, Options{}, "sell Alice Bob Car 100", "sell Carol Dave Bike 50")

			res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, []Outcome{OutcomeNoMatch, OutcomeBelowThreshold}, res.Outcome)

			all, err := f.engine.FindAll(ir.MustParsePattern("sell ?who Bob Car ?price"))
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestQuery_GroundPattern(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, id hdc.StrategyID) {
		f := newFixture(t, id, Options{},
			"sell Alice Bob Car 100",
			"sell Carol Dave Bike 50",
		)

		res, err := f.engine.Query(ir.MustParsePattern("sell Alice Bob Car 100"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
		assert.Empty(t, res.Bindings)

		res, err = f.engine.Query(ir.MustParsePattern("sell Carol Bob Car 100"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, OutcomeNoMatch, res.Outcome)
	})
}

func TestQuery_UnknownSymbolsAreNoMatch(t *testing.T) {
	f := newFixture(t, hdc.Dense, Options{}, "sell Alice Bob Car 100")

	for _, line := range []string{
		"sell ?who Zed Car ?price",
		"steal ?who Bob",
		"sell ?who Bob",
	} {
		res, err := f.engine.Query(ir.MustParsePattern(line))
		require.NoError(t, err, line)
		assert.Equal(t, OutcomeNoMatch, res.Outcome, line)
		assert.False(t, res.Success, line)
		assert.Equal(t, hdc.BandFailed, res.Band, line)
		assert.Zero(t, res.Confidence, line)
	}
}

func TestQuery_EmptyStore(t *testing.T) {
	f := newFixture(t, hdc.Sparse, Options{})
	_, err := f.enc.Vocabulary().Atom("likes")
	require.NoError(t, err)

	res, err := f.engine.Query(ir.MustParsePattern("likes ?x ?y"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestQuery_Ambiguous(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		f := newFixture(t, hdc.Exact, Options{},
			"likes Alice Tea",
			"likes Alice Coffee",
		)

		res, err := f.engine.Query(ir.MustParsePattern("likes Alice ?what"))
		require.NoError(t, err)

		assert.Equal(t, OutcomeAmbiguous, res.Outcome)
		assert.True(t, res.Success, "ambiguity penalises but does not reject")
		assert.Contains(t, []string{"Tea", "Coffee"}, res.Bindings["what"].Value)
		assert.InDelta(t, 0.5*(1-AmbiguityPenalty), res.Confidence, 1e-9)
	})

	t.Run("dense", func(t *testing.T) {
		f := newFixture(t, hdc.Dense, Options{},
			"likes Alice Tea",
			"likes Alice Coffee",
		)

		res, err := f.engine.Query(ir.MustParsePattern("likes Alice ?what"))
		require.NoError(t, err)

		b := res.Bindings["what"]
		assert.Contains(t, []string{"Tea", "Coffee"}, b.Value)
		assert.InDelta(t, b.Similarity*(1-AmbiguityPenalty), res.Confidence, 1e-9)
		assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	})
}

func TestQuery_BelowThreshold(t *testing.T) {
	strict := hdc.Profile{Baseline: 0.5, Strong: 0.999, Good: 0.995, Weak: 0.99, Floor: 0.52}
	f := newFixture(t, hdc.Dense, Options{Profile: strict}, "sell Alice Bob Car 100")

	res, err := f.engine.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Equal(t, hdc.BandFailed, res.Band)
	assert.Equal(t, "Alice", res.Bindings["who"].Value, "the best guess is still reported")
}

func TestQuery_RepeatedHole(t *testing.T) {
	for _, id := range []hdc.StrategyID{hdc.Dense, hdc.Exact} {
		t.Run(string(id), func(t *testing.T) {
			f := newFixture(t, id, Options{},
				"likes Alice Tea",
				"likes Bob Bob",
			)

			res, err := f.engine.Query(ir.MustParsePattern("likes ?x ?x"))
			require.NoError(t, err)

			assert.Equal(t, OutcomeMatch, res.Outcome)
			assert.Equal(t, "Bob", res.Bindings["x"].Value)
			assert.Equal(t, int64(2), res.Support)
			assert.InDelta(t, res.Bindings["x"].Similarity, res.Confidence, 1e-9)
		})
	}
}

func TestQuery_CrowdedOperatorDecodesWeakly(t *testing.T) {
	lines := []string{
		"owns Ann Boat", "owns Ben Bike", "owns Cat Car", "owns Dan Drum",
		"owns Eve Easel", "owns Fay Fan", "owns Gus Guitar", "owns Hal Harp",
		"likes Ann Bike", "likes Ben Boat",
	}
	for _, id := range []hdc.StrategyID{hdc.Dense, hdc.Exact} {
		t.Run(string(id), func(t *testing.T) {
			f := newFixture(t, id, Options{}, lines...)

			res, err := f.engine.Query(ir.MustParsePattern("owns ?who Guitar"))
			require.NoError(t, err)
			assert.Equal(t, "Gus", res.Bindings["who"].Value)
			assert.False(t, res.Success, "eight owners share the position")

			res, err = f.engine.Query(ir.MustParsePattern("owns Eve ?what"))
			require.NoError(t, err)
			assert.Equal(t, "Easel", res.Bindings["what"].Value)
			assert.False(t, res.Success)
		})
	}

	t.Run("exact recall", func(t *testing.T) {
		f := newFixture(t, hdc.Exact, Options{}, lines...)
		res, err := f.engine.Query(ir.MustParsePattern("owns ?who Guitar"))
		require.NoError(t, err)
		assert.InDelta(t, 1.0/8, res.Bindings["who"].Similarity, 1e-9)
		assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	})
}

func TestQuery_Alternatives(t *testing.T) {
	f := newFixture(t, hdc.Exact, Options{TopK: 2},
		"owns Ann Boat", "owns Ben Bike",
	)

	res, err := f.engine.Query(ir.MustParsePattern("owns Ann ?what"))
	require.NoError(t, err)

	b := res.Bindings["what"]
	assert.Equal(t, "Boat", b.Value)
	assert.Equal(t, []hdc.Match{{Name: "Bike", Similarity: 0.5}}, b.Alternatives)
	for _, alt := range b.Alternatives {
		assert.NotEqual(t, "Boat", alt.Name)
		assert.LessOrEqual(t, alt.Similarity, b.Similarity)
	}
}

func TestQuery_AcceleratorDecodesAggregate(t *testing.T) {
	for _, id := range []hdc.StrategyID{hdc.Dense, hdc.Exact} {
		t.Run(string(id), func(t *testing.T) {
			f := newFixture(t, id, Options{}, "sell Alice Bob Car 100")
			op, ok := f.enc.Vocabulary().Lookup("sell")
			require.True(t, ok)
			l := &lookup{
				p:     ir.MustParsePattern("sell ?who Bob Car ?price"),
				order: []string{"who", "price"},
				holes: map[string][]int{"who": {1}, "price": {4}},
				op:    op,
				short: newShortlist([]string{"who", "price"}),
			}

			require.NoError(t, f.engine.accelerate(l))

			assert.Contains(t, l.short.values["who"], "Alice")
			assert.Contains(t, l.short.values["price"], "100")
			assert.Equal(t, "Alice", l.short.best("who"))
			assert.Len(t, l.agg, 2)
		})
	}
}

func TestQuery_RejectsMalformedPattern(t *testing.T) {
	f := newFixture(t, hdc.Dense, Options{}, "likes Alice Tea")

	_, err := f.engine.Query(ir.Pattern{Operator: "likes", Args: []ir.Term{ir.C("f", "x")}})
	assert.Error(t, err)

	args := make([]ir.Term, encode.MaxArity+1)
	for i := range args {
		args[i] = ir.V("x")
	}
	_, err = f.engine.Query(ir.Pattern{Operator: "likes", Args: args})
	var arity *encode.ArityError
	assert.ErrorAs(t, err, &arity)
}

func TestOptions_Defaults(t *testing.T) {
	f := newFixture(t, hdc.Metric, Options{})
	opts := f.engine.Options()
	assert.Equal(t, DefaultTopK, opts.TopK)
	assert.Equal(t, DefaultFactTopK, opts.FactTopK)
	assert.Equal(t, DefaultMaxRounds, opts.MaxRounds)
	assert.Equal(t, hdc.DefaultProfile(hdc.Metric), opts.Profile)
}
