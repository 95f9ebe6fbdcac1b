package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

// ProveOptions holds flags for the prove command.
type ProveOptions struct {
	*RootOptions
	Database string
}

// NewProveCommand creates the prove command.
func NewProveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prove <goal...>",
		Short: "Prove a goal and print the proof tree",
		Long: `Prove a goal against the knowledge in the log and print its proof tree.

The goal is a term; nested terms are parenthesised and ?variables ask for
every solution. Each tree line reads

  goal [status method conf=C reason=R support=#seq,...]

and children are indented under the step they support. The tree is checked
against the session before it is printed.

Exit codes:
  0 - A verdict was reached (valid or not)
  1 - The proof tree does not check
  2 - Command error (bad goal, database, config)

Examples:
  lore prove --db ./kb.db isA Tweety Animal
  lore prove --db ./kb.db "canFly ?who"
  lore prove --db ./kb.db --format json "Not (canFly Opus)"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProve(cmd.Context(), opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runProve(ctx context.Context, opts *ProveOptions, line string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	goal, err := ir.ParseTerm(line)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid goal", err).WithCode(ErrCodeParse)
	}

	ws, err := openWorkspace(ctx, opts.RootOptions, opts.Database, false)
	if err != nil {
		return err
	}
	defer ws.Close()

	res, err := ws.session.Prove(ctx, goal)
	if err != nil {
		return WrapExitError(ExitCommandError, "prove failed", err)
	}
	if err := ws.session.Check(res.Tree); err != nil {
		return WrapExitError(ExitFailure, "proof tree does not check", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.Success(res)
	}
	outputProveText(f, res)
	return nil
}

func outputProveText(f *OutputFormatter, res *proof.Result) {
	w := f.Writer
	fmt.Fprint(w, res.Tree.Render())
	fmt.Fprintln(w)
	verdict := string(res.Status)
	if res.Reason != proof.ReasonNone {
		verdict += " (" + string(res.Reason) + ")"
	}
	fmt.Fprintf(w, "%s conf=%.3f steps=%d\n", verdict, res.Confidence, res.Steps)
	if len(res.Answers) > 0 && len(res.Answers[0]) > 0 {
		answers := make([]query.Bindings, len(res.Answers))
		for i, a := range res.Answers {
			answers[i] = a
		}
		fmt.Fprint(w, query.FormatAnswers(answers))
	}
}
