// Package testutil holds helpers shared by tests that drive a session from
// outside the engine package.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperlore/internal/config"
	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// NewSession creates a session under the default config and strategy id.
// Its id is the test name, so log rows and log lines are stable across runs.
func NewSession(t testing.TB, id hdc.StrategyID, opts ...engine.Option) *engine.Session {
	t.Helper()
	cfg := config.Default()
	cfg.Strategy = string(id)
	opts = append([]engine.Option{engine.WithIDGenerator(engine.NewFixedGenerator(t.Name()))}, opts...)
	s, err := engine.New(cfg, opts...)
	require.NoError(t, err)
	return s
}

// Learn learns each line and fails the test on the first error.
func Learn(t testing.TB, s *engine.Session, lines ...string) []kb.FactRef {
	t.Helper()
	refs := make([]kb.FactRef, len(lines))
	for i, line := range lines {
		ref, err := s.LearnLine(line)
		require.NoError(t, err, "learn %q", line)
		refs[i] = ref
	}
	return refs
}

// Fact builds a stored fact for line at seq without a session. The vector
// is left empty.
func Fact(t testing.TB, seq int64, line string) *kb.Fact {
	t.Helper()
	term, err := ir.ParseTerm(line)
	require.NoError(t, err)
	kind, err := kb.Classify(term)
	require.NoError(t, err)
	return &kb.Fact{Seq: seq, ID: ir.MustFactID(term), Term: term, Kind: kind}
}
