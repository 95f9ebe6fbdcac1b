package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/hyperlore/internal/config"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSession(t *testing.T, id hdc.StrategyID, opts ...Option) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Strategy = string(id)
	opts = append([]Option{WithIDGenerator(NewFixedGenerator("session-" + string(id)))}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}

func learnLines(t *testing.T, s *Session, lines ...string) []kb.FactRef {
	t.Helper()
	refs := make([]kb.FactRef, len(lines))
	for i, line := range lines {
		ref, err := s.Learn(ir.MustParseStatement(line))
		require.NoError(t, err, line)
		refs[i] = ref
	}
	return refs
}

func forEachStrategy(t *testing.T, fn func(t *testing.T, id hdc.StrategyID)) {
	for _, id := range hdc.Strategies {
		t.Run(string(id), func(t *testing.T) { fn(t, id) })
	}
}

func TestSession_LearnAndQuery(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, id hdc.StrategyID) {
		s := newSession(t, id)
		refs := learnLines(t, s,
			"sell Alice Bob Car 100",
			"sell Carol Dave Bike 50",
		)
		assert.Equal(t, int64(1), refs[0].Seq)
		assert.Equal(t, kb.KindAssertion, refs[0].Kind)
		assert.Equal(t, 2, s.Len())

		res, err := s.Query(ir.MustParsePattern("sell ?who Bob Car ?price"))
		require.NoError(t, err)
		switch id {
		case hdc.Exact, hdc.Dense:
			assert.Equal(t, query.Bindings{"who": "Alice", "price": "100"}, res.Values())
			assert.Equal(t, refs[0].Seq, res.Support)
			if id == hdc.Exact {
				assert.Equal(t, query.OutcomeMatch, res.Outcome)
			}
		default:
			assert.False(t, res.Success, "%s unbinding leaves too little to decode", id)
		}

		all, err := s.FindAll(ir.MustParsePattern("sell ?who ?to ?what ?price"))
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Equal(t, "Carol", all[1]["who"])

		require.NoError(t, s.VerifyAggregate())
	})
}

func TestSession_Duplicate(t *testing.T) {
	s := newSession(t, hdc.Dense)
	first := learnLines(t, s, "isA Tweety Bird")[0]
	again := learnLines(t, s, "isA Tweety Bird")[0]

	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Seq, again.Seq)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, s.Len())
}

func TestSession_ScratchAndReference(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, id hdc.StrategyID) {
		s := newSession(t, id)
		refs := learnLines(t, s,
			"@cond isA ?x Bird",
			"@then canFly ?x",
			"@rule:birdsFly Implies $cond $then",
			"isA Tweety Bird",
		)

		assert.Zero(t, refs[0].Seq, "scratch statements are not stored")
		assert.NotEmpty(t, refs[0].ID)
		assert.Equal(t, kb.KindRule, refs[2].Kind)
		assert.Equal(t, "birdsFly", refs[2].Name)
		assert.Equal(t, 2, s.Len())

		rule := s.Facts()[0]
		assert.Equal(t, "Implies (isA ?x Bird) (canFly ?x)", rule.Term.String())

		res, err := s.Prove(t.Context(), ir.MustParseTerm("canFly Tweety"))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		require.NoError(t, s.Check(res.Tree))
	})
}

func TestSession_ExportedDestinationIsReferenceable(t *testing.T) {
	s := newSession(t, hdc.Exact)
	refs := learnLines(t, s,
		"@sale:bigSale sell Alice Bob Car",
		"@note:n1 remembers Carol $sale",
	)
	assert.Equal(t, int64(2), refs[1].Seq)
	assert.Equal(t, "remembers Carol (sell Alice Bob Car)", s.Facts()[1].Term.String())
}

func TestSession_LearnErrors(t *testing.T) {
	wide := "wide" + strings.Repeat(" a", 21)

	tests := []struct {
		name      string
		strategy  hdc.StrategyID
		size      int
		setup     []string
		statement string
		code      LearnErrorCode
	}{
		{name: "unbound reference", statement: "likes $nobody Pizza", code: ErrCodeUnboundReference},
		{name: "arity", statement: wide, code: ErrCodeArity},
		{name: "connective fact", statement: "And a b", code: ErrCodeMalformed},
		{name: "malformed negation", statement: "Not a", code: ErrCodeMalformed},
		{name: "exact table full", strategy: hdc.Exact, size: 22, setup: []string{"p a"}, statement: "q b", code: ErrCodeCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.strategy != "" {
				cfg.Strategy = string(tt.strategy)
			}
			cfg.Size = tt.size
			s, err := New(cfg)
			require.NoError(t, err)
			learnLines(t, s, tt.setup...)
			before := s.Len()

			_, err = s.Learn(ir.MustParseStatement(tt.statement))
			require.Error(t, err)
			require.True(t, IsLearnError(err))

			var le *LearnError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.code, le.Code)
			assert.Equal(t, tt.statement, le.Statement)
			assert.Contains(t, err.Error(), string(tt.code))
			assert.Equal(t, before, s.Len(), "failed learn stores nothing")
		})
	}
}

func TestClassify_Mismatch(t *testing.T) {
	err := errors.Wrap(&hdc.MismatchError{}, "bind")
	assert.Equal(t, ErrCodeMismatch, classify(err))
	assert.Equal(t, ErrCodeMalformed, classify(errors.New("anything else")))
}

func TestSession_LearnAllContinuesPastFailures(t *testing.T) {
	s := newSession(t, hdc.Dense)
	results := s.LearnAll([]ir.Statement{
		ir.MustParseStatement("isA Tweety Bird"),
		ir.MustParseStatement("likes $nobody Pizza"),
		ir.MustParseStatement("isA Opus Penguin"),
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, IsLearnError(results[1].Err))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, int64(2), results[2].Ref.Seq)
	assert.Equal(t, 2, s.Len())
}

func TestSession_Assert(t *testing.T) {
	s := newSession(t, hdc.Sparse)
	ref, err := s.Assert(ir.MustParseTerm("Not (canFly Opus)"), "opus")
	require.NoError(t, err)
	assert.Equal(t, kb.KindNegation, ref.Kind)
	assert.Equal(t, "opus", ref.Name)

	_, err = s.Assert(ir.MustParseTerm("Or (p a) (q b)"), "")
	assert.True(t, IsLearnError(err))
}

func TestSession_Graph(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, id hdc.StrategyID) {
		s := newSession(t, id)
		require.NoError(t, s.DefineGraph(ir.GraphDef{
			Name:   "sell",
			Params: []string{"seller", "buyer", "item"},
			Body: []ir.Statement{
				ir.MustParseStatement("@give give seller item"),
				ir.MustParseStatement("@get receive buyer item"),
				ir.MustParseStatement("@both exchange $give $get"),
			},
			Return: "both",
		}))
		assert.Error(t, s.DefineGraph(ir.GraphDef{Name: "sell", Return: "x", Params: []string{"x"}}))
		require.NoError(t, s.DefineGraph(ir.GraphDef{
			Name:   "sell",
			Params: []string{"seller", "buyer", "item"},
			Body: []ir.Statement{
				ir.MustParseStatement("@give give seller item"),
				ir.MustParseStatement("@get receive buyer item"),
				ir.MustParseStatement("@both exchange $give $get"),
			},
			Return: "both",
		}), "an identical definition is accepted")
		require.Len(t, s.Graphs(), 1)

		learnLines(t, s, "sell Alice Bob Car")

		all, err := s.FindAll(ir.MustParsePattern("sell ?a Bob ?c"))
		require.NoError(t, err)
		assert.Equal(t, []query.Bindings{{"a": "Alice", "c": "Car"}}, all)

		// The expansion hides the arguments from positional decoding.
		res, err := s.Query(ir.MustParsePattern("sell ?who Bob Car"))
		require.NoError(t, err)
		assert.False(t, res.Success)

		pr, err := s.Prove(context.Background(), ir.MustParseTerm("sell Alice Bob Car"))
		require.NoError(t, err)
		assert.True(t, pr.Valid)
	})
}

func TestSession_ProveNegation(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, id hdc.StrategyID) {
		s := newSession(t, id)
		learnLines(t, s,
			"@cond isA ?x Bird",
			"@then canFly ?x",
			"@rule:birdsFly Implies $cond $then",
			"isA Opus Bird",
			"@opus canFly Opus",
			"@no:opusGrounded Not $opus",
		)

		res, err := s.Prove(context.Background(), ir.MustParseTerm("canFly Opus"))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, proof.StatusInvalid, res.Status)
		assert.Equal(t, proof.ReasonExplicitNegation, res.Reason)
		require.NoError(t, s.Check(res.Tree))
	})
}

func TestSession_ProveRespectsContext(t *testing.T) {
	s := newSession(t, hdc.Dense)
	learnLines(t, s, "isA Tweety Bird")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Prove(ctx, ir.MustParseTerm("isA Tweety Bird"))
	require.NoError(t, err)
	assert.Equal(t, proof.ReasonTimeout, res.Reason)
	assert.Equal(t, proof.StatusUnresolved, res.Status)

	_, err = s.Prove(context.Background(), ir.A("Tweety"))
	assert.Error(t, err)
}

func TestSession_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy = "holographic"
	_, err := New(cfg)
	assert.True(t, hdc.IsConfigError(err))

	alg, err := hdc.New(hdc.Sparse, 0)
	require.NoError(t, err)
	_, err = New(config.Default(), WithStrategy(alg))
	assert.True(t, hdc.IsConfigError(err), "strategy must match the configured id")
}

func TestSession_ParallelSessionsAreIsolated(t *testing.T) {
	var g errgroup.Group
	for _, id := range hdc.Strategies {
		for n := range 3 {
			g.Go(func() error {
				cfg := config.Default()
				cfg.Strategy = string(id)
				s, err := New(cfg)
				if err != nil {
					return err
				}
				who := fmt.Sprintf("Buyer%d", n)
				for _, st := range []string{
					"sell Alice " + who + " Car 100",
					"sell Carol Dave Bike 50",
				} {
					if _, err := s.Learn(ir.MustParseStatement(st)); err != nil {
						return err
					}
				}
				all, err := s.FindAll(ir.MustParsePattern("sell Alice ?to Car 100"))
				if err != nil {
					return err
				}
				if len(all) != 1 || all[0]["to"] != who {
					return errors.Newf("%s session %d: got %v, want %q", id, n, all, who)
				}
				if id != hdc.Exact && id != hdc.Dense {
					return nil
				}
				res, err := s.Query(ir.MustParsePattern("sell Alice ?to Car 100"))
				if err != nil {
					return err
				}
				if got := res.Bindings["to"].Value; !res.Success || got != who {
					return errors.Newf("%s session %d: got %q (%s), want %q", id, n, got, res.Outcome, who)
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())
}

func TestSession_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newSession(t, hdc.Dense, WithRegisterer(reg))
	learnLines(t, s, "isA Tweety Bird", "isA Tweety Bird")

	_, err := s.Query(ir.MustParsePattern("isA ?x Bird"))
	require.NoError(t, err)
	_, err = s.Query(ir.MustParsePattern("isA ?x Fish"))
	require.NoError(t, err)
	_, err = s.Prove(context.Background(), ir.MustParseTerm("isA Tweety Bird"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.queries.WithLabelValues(string(query.OutcomeMatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.queries.WithLabelValues(string(query.OutcomeNoMatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.proofs.WithLabelValues(string(proof.StatusValid), "")))

	facts, err := testutil.GatherAndCount(reg, "hyperlore_kb_facts")
	require.NoError(t, err)
	assert.Equal(t, 1, facts)

	// A second session with its own id shares the registry.
	other := newSession(t, hdc.Sparse, WithRegisterer(reg))
	assert.NotEqual(t, s.ID(), other.ID())
}

func TestSession_LogsWithSessionID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newSession(t, hdc.Metric, WithLogger(zap.New(core)))
	learnLines(t, s, "isA Tweety Bird")

	learned := logs.FilterMessage("learned").All()
	require.Len(t, learned, 1)
	assert.Equal(t, "session-metric", learned[0].ContextMap()["session"])
	assert.Equal(t, int64(1), learned[0].ContextMap()["seq"])
}

type recordingJournal struct {
	facts  []string
	graphs []string
	fail   bool
}

func (j *recordingJournal) AppendFact(session string, f *kb.Fact) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.facts = append(j.facts, fmt.Sprintf("%s %s", session, f))
	return nil
}

func (j *recordingJournal) AppendGraph(session string, g ir.GraphDef) error {
	j.graphs = append(j.graphs, session+" "+g.Name)
	return nil
}

func TestSession_Journal(t *testing.T) {
	j := &recordingJournal{}
	s := newSession(t, hdc.Dense, WithJournal(j))
	require.NoError(t, s.DefineGraph(ir.GraphDef{Name: "pair", Params: []string{"x"}, Return: "x"}))
	learnLines(t, s,
		"isA Tweety Bird",
		"@tmp isA ?x Bird",
		"isA Tweety Bird",
	)

	assert.Equal(t, []string{"session-dense #1 isA Tweety Bird"}, j.facts)
	assert.Equal(t, []string{"session-dense pair"}, j.graphs)
	require.NoError(t, s.DefineGraph(ir.GraphDef{Name: "pair", Params: []string{"x"}, Return: "x"}))
	assert.Len(t, j.graphs, 1, "an identical redefinition is not journaled again")

	j.fail = true
	ref, err := s.Learn(ir.MustParseStatement("isA Opus Penguin"))
	require.Error(t, err)
	assert.False(t, IsLearnError(err))
	assert.Equal(t, int64(2), ref.Seq, "the fact is stored even if the journal fails")
}

func TestSession_Capacity(t *testing.T) {
	s := newSession(t, hdc.Dense)
	learnLines(t, s, "isA Tweety Bird", "isA Opus Penguin")
	report := s.Capacity()
	assert.Equal(t, hdc.Dense, report.Strategy)
	assert.Equal(t, 2, report.Items)
	assert.False(t, report.Saturated)
}

func TestSession_LearnLine(t *testing.T) {
	s := newSession(t, hdc.Metric)

	ref, err := s.LearnLine("isA Tweety Bird")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Seq)

	ref, err = s.LearnLine("Implies (isA ?x Bird) (canFly ?x)")
	require.NoError(t, err)
	assert.Equal(t, kb.KindRule, ref.Kind)

	ref, err = s.LearnLine("@b isA ?x Bird")
	require.NoError(t, err)
	assert.Zero(t, ref.Seq)

	for _, line := range []string{"", "   ", "Not (p a", "@ p a"} {
		_, err := s.LearnLine(line)
		var le *LearnError
		require.ErrorAs(t, err, &le, "%q", line)
		assert.Equal(t, ErrCodeMalformed, le.Code, "%q", line)
	}
	assert.Equal(t, 2, s.Len())
}
