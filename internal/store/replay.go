package store

import (
	"context"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// Replayer is what a log replays into. *engine.Session implements it.
type Replayer interface {
	Assert(term ir.Compound, name string) (kb.FactRef, error)
	DefineGraph(g ir.GraphDef) error
}

// ReplayReport summarises a replay.
type ReplayReport struct {
	Facts   int   `json:"facts"`
	Graphs  int   `json:"graphs"`
	LastSeq int64 `json:"last_seq"`
}

// ReplayDivergedError reports that replay produced a different sequence
// number than the log recorded. The target was not empty, or the log was
// written out of order.
type ReplayDivergedError struct {
	LogSeq    int64
	ReplaySeq int64
	Term      string
}

func (e *ReplayDivergedError) Error() string {
	return fmt.Sprintf("replay diverged at log #%d (%s): session assigned #%d", e.LogSeq, e.Term, e.ReplaySeq)
}

// IsReplayDivergedError reports whether err wraps a ReplayDivergedError.
func IsReplayDivergedError(err error) bool {
	var rd *ReplayDivergedError
	return errors.As(err, &rd)
}

// Replay feeds the log into target: each graph just before the first fact
// logged after it, each fact in seq order. target should be empty.
func (s *Store) Replay(ctx context.Context, target Replayer) (ReplayReport, error) {
	var report ReplayReport

	graphs, err := s.ReadGraphs(ctx)
	if err != nil {
		return report, errors.Wrap(err, "replay")
	}
	facts, err := s.ReadFacts(ctx)
	if err != nil {
		return report, errors.Wrap(err, "replay")
	}

	defineUpTo := func(seq int64) error {
		for len(graphs) > 0 && graphs[0].AfterSeq <= seq {
			if err := target.DefineGraph(graphs[0].Graph); err != nil {
				return errors.Wrapf(err, "replay graph %q", graphs[0].Graph.Name)
			}
			report.Graphs++
			graphs = graphs[1:]
		}
		return nil
	}

	for _, r := range facts {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "replay")
		}
		if err := defineUpTo(r.Seq - 1); err != nil {
			return report, err
		}
		ref, err := target.Assert(r.Term, r.Name)
		if err != nil {
			return report, errors.Wrapf(err, "replay fact #%d", r.Seq)
		}
		if ref.Seq != r.Seq || ref.Duplicate {
			return report, errors.WithStack(&ReplayDivergedError{LogSeq: r.Seq, ReplaySeq: ref.Seq, Term: r.Term.String()})
		}
		report.Facts++
		report.LastSeq = r.Seq
	}
	if err := defineUpTo(math.MaxInt64); err != nil {
		return report, err
	}
	return report, nil
}
