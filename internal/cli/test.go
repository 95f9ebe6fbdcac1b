package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/hyperlore/internal/harness"
	"github.com/roach88/hyperlore/internal/hdc"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Golden   string // golden directory; default <scenarios-dir>/../golden
	Parallel int
}

// ScenarioResult holds the result of a single scenario under one strategy.
type ScenarioResult struct {
	Name     string         `json:"name"`
	Strategy hdc.StrategyID `json:"strategy"`
	Pass     bool           `json:"pass"`
	Errors   []string       `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run YAML scenarios",
		Long: `Run YAML scenarios, each under every strategy it lists, in parallel.

Each run learns the scenario's theory into a fresh session journaled to an
in-memory log, executes its steps against their expectations, and replays
the log into a second session. Transcripts of golden steps are compared
with <golden-dir>/<name>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unparseable scenarios)

Examples:
  lore test ./testdata/scenarios
  lore test ./testdata/scenarios --filter "bird*"
  lore test ./testdata/scenarios --update
  lore test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "concurrent scenario runs")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir)).WithCode(ErrCodeNotFound)
	}
	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	scenarios, err := harness.LoadDir(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err).WithCode(ErrCodeParse)
	}
	scenarios, err = filterScenarios(scenarios, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	logger, err := opts.logger()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	runs, err := harness.RunAll(ctx, scenarios, harness.Options{Logger: logger, Parallelism: opts.Parallel})
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario run failed", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(runs)), Total: len(runs)}
	updated := map[string]bool{}
	for _, run := range runs {
		sr := ScenarioResult{Name: run.Scenario, Strategy: run.Strategy, Errors: run.Errors}
		if err := checkGolden(goldenDir, run, opts.Update && !updated[run.Scenario]); err != nil {
			sr.Errors = append(sr.Errors, err.Error())
		}
		updated[run.Scenario] = true
		sr.Pass = len(sr.Errors) == 0
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if result.Failed > 0 {
			if err := f.Failure(ErrCodeScenarios, "scenarios failed", result); err != nil {
				return err
			}
		} else if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputTestText(f, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario run(s) failed", result.Failed)).Reported()
	}
	return nil
}

func filterScenarios(scenarios []*harness.Scenario, pattern string) ([]*harness.Scenario, error) {
	if pattern == "" {
		return scenarios, nil
	}
	var out []*harness.Scenario
	for _, sc := range scenarios {
		matched, err := filepath.Match(pattern, sc.Name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, sc)
		}
	}
	return out, nil
}

// checkGolden compares a run's transcript with its golden file, or writes
// the file when update is set. Runs without golden steps and scenarios
// without a golden file pass.
func checkGolden(dir string, run *harness.Result, update bool) error {
	if run.Transcript == "" {
		return nil
	}
	path := filepath.Join(dir, run.Scenario+".golden")
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create golden directory")
		}
		return errors.Wrap(os.WriteFile(path, []byte(run.Transcript), 0o644), "write golden file")
	}
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read golden file")
	}
	if string(want) != run.Transcript {
		return errors.Newf("transcript does not match %s (run with --update to regenerate)", path)
	}
	return nil
}

func outputTestText(f *OutputFormatter, r TestResult) {
	w := f.Writer
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s [%s]\n", mark, s.Name, s.Strategy)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
}
