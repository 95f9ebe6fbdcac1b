package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Exact    bool // every symbolic match instead of the best approximate one
	Log      bool // exact lookup straight against the log's SQL index
}

// AnswersResult is the payload of an exact query.
type AnswersResult struct {
	Pattern string           `json:"pattern"`
	Answers []query.Bindings `json:"answers"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <operator> <args...>",
		Short: "Fill the holes of a pattern",
		Long: `Fill the ?holes of a pattern from the knowledge in the log.

By default the pattern is answered by similarity: the best value per hole,
a confidence, and an outcome (match, ambiguous, below_threshold, no_match).
With --exact every stored fact matching the pattern symbolically is listed.
With --log the exact lookup runs against the log's SQL index without
building a session.

Examples:
  lore query --db ./kb.db sell ?who Bob Car ?price
  lore query --db ./kb.db --exact isA ?x Bird
  lore query --db ./kb.db --log --format json parent Ann ?child`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Exact, "exact", false, "list every exact match")
	cmd.Flags().BoolVar(&opts.Log, "log", false, "exact lookup against the log index")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, line string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := ir.ParsePattern(line)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err).WithCode(ErrCodeParse)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	if opts.Log {
		return queryLog(ctx, opts, p, f)
	}

	ws, err := openWorkspace(ctx, opts.RootOptions, opts.Database, false)
	if err != nil {
		return err
	}
	defer ws.Close()
	f.VerboseLog("replayed %d fact(s) into session %s", ws.report.Facts, ws.session.ID())

	if opts.Exact {
		answers, err := ws.session.FindAll(p)
		if err != nil {
			return WrapExitError(ExitCommandError, "query failed", err)
		}
		return outputAnswers(f, AnswersResult{Pattern: line, Answers: answers})
	}

	res, err := ws.session.Query(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "query failed", err)
	}
	if opts.Format == "json" {
		return f.Success(res)
	}
	outputQueryText(f, p, res)
	return nil
}

func queryLog(ctx context.Context, opts *QueryOptions, p ir.Pattern, f *OutputFormatter) error {
	log, err := openLogOnly(opts.Database)
	if err != nil {
		return err
	}
	defer log.Close()

	answers, err := log.FindFacts(ctx, p)
	if err != nil {
		return WrapExitError(ExitCommandError, "log lookup failed", err)
	}
	return outputAnswers(f, AnswersResult{Pattern: p.String(), Answers: answers})
}

func outputAnswers(f *OutputFormatter, r AnswersResult) error {
	if f.Format == "json" {
		return f.Success(r)
	}
	fmt.Fprint(f.Writer, query.FormatAnswers(r.Answers))
	return nil
}

func outputQueryText(f *OutputFormatter, p ir.Pattern, res *query.Result) {
	w := f.Writer
	fmt.Fprintf(w, "%s conf=%.3f band=%s\n", res.Outcome, res.Confidence, res.Band)
	for _, hole := range p.Holes() {
		b, ok := res.Bindings[hole]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %s = %s (%.3f)\n", hole, b.Value, b.Similarity)
		if f.Verbose {
			for _, alt := range b.Alternatives {
				fmt.Fprintf(w, "      %s (%.3f)\n", alt.Name, alt.Similarity)
			}
		}
	}
	if res.Support > 0 {
		fmt.Fprintf(w, "  support #%d\n", res.Support)
	}
}
