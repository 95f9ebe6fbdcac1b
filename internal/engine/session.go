package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/config"
	"github.com/roach88/hyperlore/internal/encode"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

// Journal receives every newly stored fact and graph definition, in order.
// The SQLite log implements it.
type Journal interface {
	AppendFact(session string, f *kb.Fact) error
	AppendGraph(session string, g ir.GraphDef) error
}

// Session is one isolated knowledge base.
//
// Thread-safety: every method takes the session lock, so a Session may be
// shared between goroutines, but its operations never overlap.
type Session struct {
	mu sync.Mutex

	id     string
	cfg    config.Config
	alg    hdc.Strategy
	enc    *encode.Encoder
	store  *kb.Store
	query  *query.Engine
	prover *proof.Prover

	journal Journal
	logger  *zap.Logger
	metrics *Metrics
}

type options struct {
	logger   *zap.Logger
	reg      prometheus.Registerer
	ids      IDGenerator
	journal  Journal
	strategy hdc.Strategy
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the session's collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithIDGenerator replaces the UUIDv7 session id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithJournal appends every stored fact and graph to j.
func WithJournal(j Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithStrategy uses alg instead of building one from the config. alg must
// not be shared with another session.
func WithStrategy(alg hdc.Strategy) Option {
	return func(o *options) { o.strategy = alg }
}

// New validates cfg and builds an empty session.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	o := options{logger: zap.NewNop(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	alg := o.strategy
	if alg == nil {
		var err error
		if alg, err = hdc.New(cfg.StrategyID(), cfg.Size); err != nil {
			return nil, err
		}
	} else if alg.ID() != cfg.StrategyID() {
		return nil, &hdc.ConfigError{Field: "strategy", Value: string(alg.ID()), Reason: "does not match configured " + cfg.Strategy}
	}

	enc, err := encode.New(alg)
	if err != nil {
		return nil, errors.Wrap(err, "encoder")
	}

	id := o.ids.Generate()
	logger := o.logger.With(zap.String("session", id))

	kbMetrics, err := kb.NewMetrics(o.reg, id)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(o.reg, id)
	if err != nil {
		return nil, err
	}

	store := kb.New(alg, kb.WithMetrics(kbMetrics), kb.WithLogger(logger))
	s := &Session{
		id:      id,
		cfg:     cfg,
		alg:     alg,
		enc:     enc,
		store:   store,
		query:   query.New(enc, store, cfg.QueryOptions(), logger),
		prover:  proof.New(enc, store, cfg.ProofOptions(), logger),
		journal: o.journal,
		logger:  logger,
		metrics: metrics,
	}
	logger.Debug("session started",
		zap.String("strategy", string(alg.ID())),
		zap.Int("size", alg.Size()))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was built with.
func (s *Session) Config() config.Config { return s.cfg }

// Strategy returns the session's algebra.
func (s *Session) Strategy() hdc.Strategy { return s.alg }

// Learn encodes and stores one statement.
//
// A scratch statement (destination, no export name) is bound for later
// $references and not stored; its FactRef has Seq 0. A term that is
// already stored comes back with Duplicate set. Errors are *LearnError.
func (s *Session) Learn(st ir.Statement) (kb.FactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.learn(st)
}

func (s *Session) learn(st ir.Statement) (kb.FactRef, error) {
	term, vec, err := s.enc.EncodeStatement(st, s.enc.Root())
	if err != nil {
		return kb.FactRef{}, newLearnError(st.String(), err)
	}

	if st.IsScratch() {
		id, err := ir.FactID(term)
		if err != nil {
			return kb.FactRef{}, newLearnError(st.String(), err)
		}
		s.enc.Root().Bind(st.Destination, encode.Binding{Term: term, Vector: vec})
		s.logger.Debug("bound scratch destination",
			zap.String("destination", st.Destination),
			zap.Stringer("term", term))
		return kb.FactRef{ID: id}, nil
	}

	ref, err := s.store.Add(term, vec, st.ExportName)
	if err != nil {
		return kb.FactRef{}, newLearnError(st.String(), err)
	}
	if st.Destination != "" {
		s.enc.Root().Bind(st.Destination, encode.Binding{Term: term, Vector: vec})
	}
	if err := s.record(ref); err != nil {
		return ref, err
	}
	return ref, nil
}

// Assert stores a term directly, bypassing statement resolution. Nested
// compounds are encoded recursively. Errors are *LearnError.
func (s *Session) Assert(term ir.Compound, name string) (kb.FactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := s.enc.EncodeTerm(term)
	if err != nil {
		return kb.FactRef{}, newLearnError(term.String(), err)
	}
	ref, err := s.store.Add(term, vec, name)
	if err != nil {
		return kb.FactRef{}, newLearnError(term.String(), err)
	}
	if err := s.record(ref); err != nil {
		return ref, err
	}
	return ref, nil
}

// LearnLine learns one line of text. A line with parentheses is read as a
// nested term and asserted; anything else is a statement with the @dest,
// ?hole and $ref sigils. Parse failures are MALFORMED_STATEMENT.
func (s *Session) LearnLine(line string) (kb.FactRef, error) {
	if !strings.Contains(line, "(") {
		st, err := ir.ParseStatement(line)
		if err != nil {
			return kb.FactRef{}, &LearnError{Code: ErrCodeMalformed, Statement: line, Err: err}
		}
		return s.Learn(st)
	}
	term, err := ir.ParseTerm(line)
	if err != nil {
		return kb.FactRef{}, &LearnError{Code: ErrCodeMalformed, Statement: line, Err: err}
	}
	return s.Assert(term, "")
}

// record journals a newly stored fact.
func (s *Session) record(ref kb.FactRef) error {
	f, _ := s.store.Get(ref.Seq)
	s.logger.Debug("learned",
		zap.Int64("seq", ref.Seq),
		zap.String("kind", string(ref.Kind)),
		zap.Stringer("term", f),
		zap.Bool("duplicate", ref.Duplicate))
	if ref.Duplicate || s.journal == nil {
		return nil
	}
	if err := s.journal.AppendFact(s.id, f); err != nil {
		s.logger.Error("journal append failed", zap.Int64("seq", ref.Seq), zap.Error(err))
		return errors.Wrapf(err, "journal fact #%d", ref.Seq)
	}
	return nil
}

// LearnResult is the outcome of one statement in LearnAll.
type LearnResult struct {
	Statement ir.Statement
	Ref       kb.FactRef
	Err       error
}

// LearnAll learns statements in order. A failed statement does not stop
// the ones after it.
func (s *Session) LearnAll(sts []ir.Statement) []LearnResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LearnResult, len(sts))
	for i, st := range sts {
		ref, err := s.learn(st)
		out[i] = LearnResult{Statement: st, Ref: ref, Err: err}
		if err != nil {
			s.logger.Warn("statement skipped", zap.Stringer("statement", st), zap.Error(err))
		}
	}
	return out
}

// DefineGraph registers a named expansion for later statements.
func (s *Session) DefineGraph(g ir.GraphDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, known := s.enc.Graph(g.Name)
	if err := s.enc.DefineGraph(g); err != nil {
		return err
	}
	if known {
		return nil
	}
	s.logger.Debug("graph defined", zap.String("graph", g.Name), zap.Strings("params", g.Params))
	if s.journal != nil {
		if err := s.journal.AppendGraph(s.id, g); err != nil {
			return errors.Wrapf(err, "journal graph %q", g.Name)
		}
	}
	return nil
}

// Graphs lists defined graphs in definition order.
func (s *Session) Graphs() []ir.GraphDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Graphs()
}

// Query answers a pattern approximately.
func (s *Session) Query(p ir.Pattern) (*query.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.query.Query(p)
	if err != nil {
		return nil, err
	}
	s.metrics.observeQuery(res.Outcome)
	return res, nil
}

// FindAll enumerates exact metadata matches in learning order.
func (s *Session) FindAll(p ir.Pattern) ([]query.Bindings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query.FindAll(p)
}

// Prove searches for a proof of goal, bounded by the configured timeout
// as well as ctx.
func (s *Session) Prove(ctx context.Context, goal ir.Term) (*proof.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.ProofTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProofTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := s.prover.Prove(ctx, goal)
	if err != nil {
		return nil, err
	}
	s.metrics.observeProof(res, time.Since(start))
	return res, nil
}

// Check re-verifies a proof tree against this session's facts.
func (s *Session) Check(t *proof.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proof.Check(t, s.store, proof.CheckOptions{ClosedWorld: s.cfg.ClosedWorld})
}

// Capacity reports aggregate saturation.
func (s *Session) Capacity() hdc.CapacityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Capacity()
}

// Facts returns the stored facts in sequence order.
func (s *Session) Facts() []*kb.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Facts()
}

// Len is the number of stored facts.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// VerifyAggregate rebuilds the aggregate from the stored facts and
// compares it with the incremental one.
func (s *Session) VerifyAggregate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.VerifyAggregate()
}
