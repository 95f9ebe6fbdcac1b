package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// RecordSession notes which session, under which strategy, starts writing
// at firstSeq. Recording the same session twice is a no-op.
func (s *Store) RecordSession(ctx context.Context, id, strategy string, size int, firstSeq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, strategy, size, first_seq, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, strategy, size, firstSeq, ir.EngineVersion)
	if err != nil {
		return errors.Wrap(err, "record session")
	}
	return nil
}

// WriteFact appends f. A fact whose id is already logged is ignored, so
// writing the same term twice is idempotent; a different term at an
// existing seq is an error.
func (s *Store) WriteFact(ctx context.Context, session string, f *kb.Fact) error {
	term, err := ir.MarshalCanonical(f.Term)
	if err != nil {
		return errors.Wrapf(err, "write fact #%d", f.Seq)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "write fact: begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO facts (seq, id, session_id, name, operator, arity, kind, term, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, f.Seq, f.ID, session, f.Name, f.Term.Operator, len(f.Term.Args), string(f.Kind), string(term), ir.IRVersion)
	if err != nil {
		return errors.Wrapf(err, "write fact #%d", f.Seq)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "write fact: rows affected")
	} else if n == 0 {
		return nil
	}

	for i, arg := range f.Term.Args {
		var value any
		if a, ok := arg.(ir.Atom); ok {
			value = a.Name
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fact_args (fact_seq, position, value) VALUES (?, ?, ?)
		`, f.Seq, i+1, value); err != nil {
			return errors.Wrapf(err, "write fact #%d argument %d", f.Seq, i+1)
		}
	}
	return errors.Wrap(tx.Commit(), "write fact: commit")
}

// WriteGraph appends a graph definition, ordered after the facts logged so
// far. Redefining a logged graph is ignored.
func (s *Store) WriteGraph(ctx context.Context, session string, g ir.GraphDef) error {
	def, err := json.Marshal(g)
	if err != nil {
		return errors.Wrapf(err, "write graph %q", g.Name)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (name, session_id, after_seq, definition)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) FROM facts), ?)
		ON CONFLICT(name) DO NOTHING
	`, g.Name, session, string(def))
	if err != nil {
		return errors.Wrapf(err, "write graph %q", g.Name)
	}
	return nil
}

// Journal is the log as an engine.Journal. Sessions append without a
// context of their own, so the writes run under the one bound here.
type Journal struct {
	store *Store
	ctx   context.Context
}

// Journal binds ctx to every write the returned journal makes.
func (s *Store) Journal(ctx context.Context) *Journal {
	return &Journal{store: s, ctx: ctx}
}

// AppendFact implements engine.Journal.
func (j *Journal) AppendFact(session string, f *kb.Fact) error {
	return j.store.WriteFact(j.ctx, session, f)
}

// AppendGraph implements engine.Journal.
func (j *Journal) AppendGraph(session string, g ir.GraphDef) error {
	return j.store.WriteGraph(j.ctx, session, g)
}
