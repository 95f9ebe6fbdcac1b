package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// LoggedSession describes one session that wrote to the log.
type LoggedSession struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
	Size     int    `json:"size"`
	FirstSeq int64  `json:"first_seq"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Strategy hdc.StrategyID     `json:"strategy"`
	Report   store.ReplayReport `json:"report"`
	Sessions []LoggedSession    `json:"sessions"`
	Capacity hdc.CapacityReport `json:"capacity"`
	Verified bool               `json:"verified"`
	Problem  string             `json:"problem,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a session from the fact log and verify it",
		Long: `Replay the fact log into a fresh session and verify the result.

Every logged graph and fact is replayed in sequence order under the
configured strategy, which need not be the one that wrote the log. The
rebuilt session must assign each fact its logged sequence number, and its
aggregate vector must equal the bundle of its facts.

Exit codes:
  0 - The log replays and verifies
  1 - Replay diverged or the aggregate does not verify
  2 - Command error (database not found, etc.)

Examples:
  lore replay --db ./kb.db
  lore replay --db ./kb.db --config sparse.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	logger, err := opts.logger()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	log, err := openLogOnly(opts.Database)
	if err != nil {
		return err
	}
	defer log.Close()

	sessions, err := log.ReadSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}
	sess, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}

	result := ReplayResult{Strategy: sess.Strategy().ID(), Sessions: []LoggedSession{}}
	for _, s := range sessions {
		result.Sessions = append(result.Sessions, LoggedSession{ID: s.ID, Strategy: s.Strategy, Size: s.Size, FirstSeq: s.FirstSeq})
	}

	result.Report, err = log.Replay(ctx, sess)
	switch {
	case store.IsReplayDivergedError(err):
		result.Problem = err.Error()
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to replay log", err)
	default:
		if err := sess.VerifyAggregate(); err != nil {
			result.Problem = err.Error()
		} else {
			result.Verified = true
		}
	}
	result.Capacity = sess.Capacity()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if !result.Verified {
			if err := f.Failure(ErrCodeDiverged, "replay verification failed", result); err != nil {
				return err
			}
		} else if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(f, result)
	}

	if !result.Verified {
		return NewExitError(ExitFailure, "replay verification failed").Reported()
	}
	return nil
}

func outputReplayText(f *OutputFormatter, r ReplayResult) {
	w := f.Writer
	fmt.Fprintf(w, "Replay Summary: %d fact(s), %d graph(s), last #%d under %s\n",
		r.Report.Facts, r.Report.Graphs, r.Report.LastSeq, r.Strategy)
	for _, s := range r.Sessions {
		f.VerboseLog("  session %s: %s/%d from #%d", s.ID, s.Strategy, s.Size, s.FirstSeq)
	}
	c := r.Capacity
	fmt.Fprintf(w, "Capacity: %d of %d items, member similarity %.3f, noise floor %.3f\n",
		c.Items, c.MaxItems, c.ExpectedSimilarity, c.NoiseFloor)
	fmt.Fprintln(w)
	if r.Verified {
		fmt.Fprintln(w, "✓ Log replays and aggregate verifies")
		return
	}
	fmt.Fprintf(w, "✗ Replay verification failed: %s\n", r.Problem)
}
