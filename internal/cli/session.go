package cli

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/store"
)

// workspace is an open fact log and the session rebuilt from it.
type workspace struct {
	log     *store.Store
	session *engine.Session
	report  store.ReplayReport
	logger  *zap.Logger
}

// openWorkspace opens the log at dbPath and replays it into a new session.
//
// With writable set, a missing database is created, the session journals
// to the log, and it is recorded in the sessions table. Replayed facts
// reach the journal again and are dropped by the log's id conflict rule.
// Without it, the database must already exist.
func openWorkspace(ctx context.Context, opts *RootOptions, dbPath string, writable bool) (*workspace, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	logger, err := opts.logger()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	var log *store.Store
	if writable {
		log, err = store.Open(dbPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
	} else if log, err = openLogOnly(dbPath); err != nil {
		return nil, err
	}

	sessOpts := []engine.Option{engine.WithLogger(logger)}
	if writable {
		sessOpts = append(sessOpts, engine.WithJournal(log.Journal(ctx)))
	}
	sess, err := engine.New(cfg, sessOpts...)
	if err != nil {
		log.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start session", err)
	}

	report, err := log.Replay(ctx, sess)
	if err != nil {
		log.Close()
		if store.IsReplayDivergedError(err) {
			return nil, WrapExitError(ExitFailure, "log does not replay", err).WithCode(ErrCodeDiverged)
		}
		return nil, WrapExitError(ExitCommandError, "failed to replay log", err)
	}
	logger.Debug("log replayed",
		zap.String("db", dbPath),
		zap.Int("facts", report.Facts),
		zap.Int("graphs", report.Graphs))

	if writable {
		alg := sess.Strategy()
		if err := log.RecordSession(ctx, sess.ID(), string(alg.ID()), alg.Size(), report.LastSeq+1); err != nil {
			log.Close()
			return nil, WrapExitError(ExitCommandError, "failed to record session", err)
		}
	}
	return &workspace{log: log, session: sess, report: report, logger: logger}, nil
}

func (w *workspace) Close() error {
	_ = w.logger.Sync()
	return w.log.Close()
}

// openLogOnly opens an existing log without building a session.
func openLogOnly(dbPath string) (*store.Store, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, "database not found: "+dbPath).WithCode(ErrCodeNotFound)
	}
	log, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return log, nil
}
