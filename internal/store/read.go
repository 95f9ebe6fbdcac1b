package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
	"github.com/roach88/hyperlore/internal/query"
)

// Record is one logged fact.
type Record struct {
	Seq       int64
	ID        string
	SessionID string
	Name      string
	Kind      kb.Kind
	Term      ir.Compound
	IRVersion string
}

// GraphRecord is one logged graph definition.
type GraphRecord struct {
	Graph     ir.GraphDef
	SessionID string
	AfterSeq  int64
}

// SessionRecord is one session that wrote to the log.
type SessionRecord struct {
	ID            string
	Strategy      string
	Size          int
	FirstSeq      int64
	EngineVersion string
}

// ReadFacts returns every logged fact in seq order.
func (s *Store) ReadFacts(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, session_id, name, kind, term, ir_version
		FROM facts
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query facts")
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r    Record
			kind string
			term string
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.SessionID, &r.Name, &kind, &term, &r.IRVersion); err != nil {
			return nil, errors.Wrap(err, "scan fact")
		}
		if r.IRVersion != ir.IRVersion {
			return nil, errors.Newf("fact #%d: term schema version %q, want %q", r.Seq, r.IRVersion, ir.IRVersion)
		}
		t, err := ir.ParseCanonicalTerm([]byte(term))
		if err != nil {
			return nil, errors.Wrapf(err, "fact #%d", r.Seq)
		}
		r.Kind = kb.Kind(kind)
		r.Term = t
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate facts")
	}
	return out, nil
}

// ReadGraphs returns the logged graph definitions in definition order.
func (s *Store) ReadGraphs(ctx context.Context) ([]GraphRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition, session_id, after_seq
		FROM graphs
		ORDER BY after_seq ASC, rowid ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query graphs")
	}
	defer rows.Close()

	out := []GraphRecord{}
	for rows.Next() {
		var (
			g   GraphRecord
			def string
		)
		if err := rows.Scan(&def, &g.SessionID, &g.AfterSeq); err != nil {
			return nil, errors.Wrap(err, "scan graph")
		}
		if err := json.Unmarshal([]byte(def), &g.Graph); err != nil {
			return nil, errors.Wrap(err, "decode graph")
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate graphs")
	}
	return out, nil
}

// ReadSessions returns the sessions that wrote to the log, oldest first.
func (s *Store) ReadSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, size, first_seq, engine_version
		FROM sessions
		ORDER BY first_seq ASC, rowid ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer rows.Close()

	out := []SessionRecord{}
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Size, &r.FirstSeq, &r.EngineVersion); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate sessions")
}

// LastSeq returns the highest logged fact seq, 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM facts`).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "last seq")
	}
	return seq, nil
}

// FindFacts is FindAll over the log: the known arguments of p become SQL
// predicates on fact_args, and the surviving terms are matched to bind the
// holes. Results are in seq order.
func (s *Store) FindFacts(ctx context.Context, p ir.Pattern) ([]query.Bindings, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "find facts")
	}
	sqlText, params := compileLookup(p)
	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, errors.Wrap(err, "find facts")
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	out := []query.Bindings{}
	for _, r := range records {
		if b, ok := query.MatchTerm(p, r.Term); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// compileLookup builds a parameterized query for p's operator, arity and
// known arguments. Values are never interpolated.
func compileLookup(p ir.Pattern) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT f.seq, f.id, f.session_id, f.name, f.kind, f.term, f.ir_version
		FROM facts f
		WHERE f.operator = ? AND f.arity = ?`)
	params := []any{p.Operator, len(p.Args)}
	for i, arg := range p.Args {
		a, ok := arg.(ir.Atom)
		if !ok {
			continue
		}
		b.WriteString(`
		AND EXISTS (SELECT 1 FROM fact_args a WHERE a.fact_seq = f.seq AND a.position = ? AND a.value = ?)`)
		params = append(params, i+1, a.Name)
	}
	b.WriteString(`
		ORDER BY f.seq ASC`)
	return b.String(), params
}
