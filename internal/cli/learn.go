package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/hyperlore/internal/compiler"
	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// LearnOptions holds flags for the learn command.
type LearnOptions struct {
	*RootOptions
	Database string
}

// LineResult is the outcome of one learned line.
type LineResult struct {
	Line      string `json:"line"`
	Seq       int64  `json:"seq,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LearnResult summarises a learn run.
type LearnResult struct {
	Session    string             `json:"session"`
	Graphs     int                `json:"graphs"`
	Lines      []LineResult       `json:"lines"`
	Learned    int                `json:"learned"`
	Duplicates int                `json:"duplicates"`
	Rejected   int                `json:"rejected"`
	Capacity   hdc.CapacityReport `json:"capacity"`

	// Warnings list recursive rule groups in the whole log.
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewLearnCommand creates the learn command.
func NewLearnCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LearnOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "learn <theory-file>",
		Short: "Learn a theory into the fact log",
		Long: `Learn graph definitions and statements into the fact log.

The log is replayed into a fresh session first, so new facts continue its
sequence. YAML files (.yaml, .yml) carry "graphs" and "learn" lists and CUE
files (.cue) carry "graph" structs and a "learn" list; any other file is
read one line per statement, skipping blank lines and lines starting with
#. Lines with parentheses are nested terms and take no sigils:

  isA Tweety Bird
  @c isA ?x Bird
  @t canFly ?x
  @r:birdsFly Implies $c $t
  Not (canFly Opus)

The theory is validated before the log is opened. Rejected lines are
reported and do not stop the ones after them. Recursive rules in the log
are reported as warnings.

Exit codes:
  0 - Every line learned
  1 - One or more lines rejected
  2 - Command error (unreadable theory, database, config)

Examples:
  lore learn --db ./kb.db ./birds.yaml
  lore learn --db ./kb.db ./commerce.cue
  lore learn --db ./kb.db --config engine.cue ./facts.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLearn(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLearn(ctx context.Context, opts *LearnOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	theory, err := compiler.LoadTheory(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load theory", err).WithCode(ErrCodeParse)
	}
	if errs := compiler.ValidateTheory(theory); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return NewExitError(ExitCommandError, "theory does not validate:\n  "+strings.Join(msgs, "\n  ")).WithCode(ErrCodeParse)
	}

	ws, err := openWorkspace(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	sess := ws.session
	result := LearnResult{Session: sess.ID(), Lines: []LineResult{}}

	for i, g := range theory.Graphs {
		def, err := g.Def()
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("graphs[%d]", i), err)
		}
		if err := sess.DefineGraph(def); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("define graph %s", def.Name), err)
		}
		result.Graphs++
	}

	for _, line := range theory.Learn {
		lr := LineResult{Line: line}
		ref, err := sess.LearnLine(line)
		var le *engine.LearnError
		switch {
		case errors.As(err, &le):
			lr.Code, lr.Error = string(le.Code), le.Err.Error()
			result.Rejected++
		case err != nil:
			return WrapExitError(ExitCommandError, "failed to write log", err)
		case ref.Duplicate:
			lr.Seq, lr.Duplicate = ref.Seq, true
			result.Duplicates++
		case ref.Seq > 0:
			lr.Seq = ref.Seq
			result.Learned++
		}
		result.Lines = append(result.Lines, lr)
	}
	result.Capacity = sess.Capacity()
	result.Warnings = ruleCycles(sess.Facts())

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if result.Rejected > 0 {
			if err := f.Failure(ErrCodeLearn, "statements rejected", result); err != nil {
				return err
			}
		} else if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputLearnText(f, result)
	}

	if result.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d statement(s) rejected", result.Rejected)).Reported()
	}
	return nil
}

func outputLearnText(f *OutputFormatter, r LearnResult) {
	w := f.Writer
	for _, l := range r.Lines {
		switch {
		case l.Code != "":
			fmt.Fprintf(w, "✗ %s\n  %s: %s\n", l.Line, l.Code, l.Error)
		case l.Duplicate:
			fmt.Fprintf(w, "= #%d %s\n", l.Seq, l.Line)
		case l.Seq > 0:
			fmt.Fprintf(w, "+ #%d %s\n", l.Seq, l.Line)
		default:
			f.VerboseLog("  bound %s", l.Line)
		}
	}
	fmt.Fprintf(w, "\nLearned %d fact(s), %d duplicate(s), %d rejected, %d graph(s)\n",
		r.Learned, r.Duplicates, r.Rejected, r.Graphs)
	for _, c := range r.Warnings {
		fmt.Fprintf(f.GetErrWriter(), "warning: %s\n", c.Message)
	}
	if r.Capacity.Saturated {
		fmt.Fprintf(f.GetErrWriter(), "warning: %s aggregate saturated (%d items, capacity %d)\n",
			r.Capacity.Strategy, r.Capacity.Items, r.Capacity.MaxItems)
	}
}

func ruleCycles(facts []*kb.Fact) []compiler.CycleWarning {
	var rules []ir.Compound
	for _, f := range facts {
		if f.Kind == kb.KindRule {
			rules = append(rules, f.Term)
		}
	}
	return compiler.AnalyzeRules(rules)
}
