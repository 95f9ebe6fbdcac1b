package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/query"
	"github.com/roach88/hyperlore/internal/store"
)

// Harness runs one scenario under one strategy.
type Harness struct {
	scenario *Scenario
	strategy hdc.StrategyID
	session  *engine.Session
	log      *store.Store
}

// Options configures a run.
type Options struct {
	// Logger receives session logs. Default: zap.NewNop().
	Logger *zap.Logger

	// Parallelism bounds concurrent runs in RunAll; <= 0 means unbounded.
	Parallelism int
}

// Run executes the scenario under every strategy it lists, in order.
// Errors are reserved for scenarios that cannot run at all; failed
// expectations are reported on the results.
func Run(ctx context.Context, sc *Scenario, opts Options) ([]*Result, error) {
	var out []*Result
	for _, id := range sc.StrategyIDs() {
		res, err := RunStrategy(ctx, sc, id, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// RunAll runs every scenario under every strategy, each run in its own
// session, concurrently. Results keep scenario then strategy order.
func RunAll(ctx context.Context, scenarios []*Scenario, opts Options) ([]*Result, error) {
	type job struct {
		sc *Scenario
		id hdc.StrategyID
	}
	var jobs []job
	for _, sc := range scenarios {
		for _, id := range sc.StrategyIDs() {
			jobs = append(jobs, job{sc, id})
		}
	}

	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, j := range jobs {
		g.Go(func() error {
			res, err := RunStrategy(ctx, j.sc, j.id, opts)
			if err != nil {
				return errors.Wrapf(err, "%s/%s", j.sc.Name, j.id)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunStrategy executes the scenario in a fresh session under id.
//
// Execution flow:
//  1. Open an in-memory fact log and a journaled session
//  2. Define graphs, learn the theory
//  3. Run the steps, checking expectations
//  4. Replay the log into a second session and compare
func RunStrategy(ctx context.Context, sc *Scenario, id hdc.StrategyID, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := sc.config()
	if err != nil {
		return nil, err
	}
	cfg.Strategy = string(id)

	log, err := store.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "create in-memory log")
	}
	defer log.Close()

	sessionID := fmt.Sprintf("%s/%s", sc.Name, id)
	sess, err := engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithIDGenerator(engine.NewFixedGenerator(sessionID)),
		engine.WithJournal(log.Journal(ctx)),
	)
	if err != nil {
		return nil, err
	}
	if err := log.RecordSession(ctx, sessionID, string(id), sess.Strategy().Size(), 1); err != nil {
		return nil, err
	}

	h := &Harness{scenario: sc, strategy: id, session: sess, log: log}
	result := NewResult(sc.Name, id)

	if err := h.setup(); err != nil {
		return nil, errors.Wrap(err, "setup")
	}
	var transcript strings.Builder
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !step.RunsUnder(id) {
			continue
		}
		if err := h.execute(ctx, i, step, result, &transcript); err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
	}
	result.Transcript = transcript.String()

	if err := h.checkReplay(ctx, cfg.Strategy, result); err != nil {
		return nil, errors.Wrap(err, "replay")
	}
	return result, nil
}

func (h *Harness) setup() error {
	for _, g := range h.scenario.Graphs {
		def, err := g.Def()
		if err != nil {
			return err
		}
		if err := h.session.DefineGraph(def); err != nil {
			return err
		}
	}
	for _, line := range h.scenario.Learn {
		if _, err := h.learn(line); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) learn(line string) (string, error) {
	ref, err := h.session.LearnLine(line)
	if err != nil {
		return "", err
	}
	return refText(ref.Seq, ref.Duplicate), nil
}

func refText(seq int64, duplicate bool) string {
	switch {
	case seq == 0:
		return "bound"
	case duplicate:
		return fmt.Sprintf("duplicate of #%d", seq)
	}
	return fmt.Sprintf("#%d", seq)
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result, transcript *strings.Builder) error {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("step %d (%s %s): ", i, step.Kind(), step.Input()) + fmt.Sprintf(format, args...))
	}

	switch step.Kind() {
	case KindLearn:
		out, err := h.learn(step.Learn)
		if err != nil {
			if !engine.IsLearnError(err) {
				return err
			}
			out = "error: " + err.Error()
		}
		result.addTrace(i, KindLearn, step.Learn, out)
		checkLearn(step.Expect, err, out, fail)

	case KindQuery:
		res, err := h.session.Query(ir.MustParsePattern(step.Query))
		if err != nil {
			return err
		}
		result.addTrace(i, KindQuery, step.Query, fmt.Sprintf("%s %v conf=%.3f", res.Outcome, res.Values(), res.Confidence))
		checkQuery(step.Expect, res, fail)

	case KindFindAll:
		answers, err := h.session.FindAll(ir.MustParsePattern(step.FindAll))
		if err != nil {
			return err
		}
		lines := query.FormatAnswers(answers)
		result.addTrace(i, KindFindAll, step.FindAll, fmt.Sprintf("%d answers", len(answers)))
		checkAnswers(step.Expect, answersOf(answers), fail)
		if step.Golden {
			fmt.Fprintf(transcript, "$ find_all %s\n%s", step.FindAll, lines)
		}

	case KindProve:
		res, err := h.session.Prove(ctx, ir.MustParseTerm(step.Prove))
		if err != nil {
			return err
		}
		result.addTrace(i, KindProve, step.Prove, fmt.Sprintf("%s %s conf=%.3f", res.Status, res.Reason, res.Confidence))
		checkProve(step.Expect, res, fail)
		if err := h.session.Check(res.Tree); err != nil {
			fail("proof tree does not check: %v", err)
		}
		if step.Golden {
			fmt.Fprintf(transcript, "$ prove %s\n%s", step.Prove, res.Tree.Render())
		}
	}
	return nil
}

// checkReplay rebuilds the session from the log and compares facts.
func (h *Harness) checkReplay(ctx context.Context, strategy string, result *Result) error {
	cfg := h.session.Config()
	cfg.Strategy = strategy
	replica, err := engine.New(cfg, engine.WithIDGenerator(engine.NewFixedGenerator("replica")))
	if err != nil {
		return err
	}
	report, err := h.log.Replay(ctx, replica)
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return nil
	}
	if report.Facts != h.session.Len() {
		result.AddError(fmt.Sprintf("replay: %d facts, session has %d", report.Facts, h.session.Len()))
	}
	if err := replica.VerifyAggregate(); err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
	}
	return nil
}
