package kb

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// Store holds the facts of one session.
//
// Not safe for concurrent use; the session serialises access.
type Store struct {
	alg   hdc.Strategy
	clock *Clock

	facts      []*Fact
	byID       map[string]*Fact
	bySeq      map[int64]*Fact
	byOperator map[string][]*Fact // every fact, in seq order
	rules      []*Fact
	negations  map[string][]*Fact // keyed by the FactID of the negated term
	properties map[string]map[ir.RelationProperty]*Fact

	acc       hdc.Accumulator
	saturated bool

	metrics *Metrics
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger used for capacity warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock resumes sequence numbering from an existing clock.
func WithClock(c *Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns an empty store over alg.
func New(alg hdc.Strategy, opts ...Option) *Store {
	s := &Store{
		alg:        alg,
		clock:      NewClock(),
		byID:       make(map[string]*Fact),
		bySeq:      make(map[int64]*Fact),
		byOperator: make(map[string][]*Fact),
		negations:  make(map[string][]*Fact),
		properties: make(map[string]map[ir.RelationProperty]*Fact),
		acc:        alg.NewAccumulator(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores term with its vector. A term already stored is not stored
// again: the original reference comes back with Duplicate set.
func (s *Store) Add(term ir.Compound, vec hdc.Vector, name string) (FactRef, error) {
	id, err := ir.FactID(term)
	if err != nil {
		return FactRef{}, errors.Wrap(err, "fact id")
	}
	if existing, ok := s.byID[id]; ok {
		s.metrics.observeDuplicate()
		ref := existing.Ref()
		ref.Duplicate = true
		return ref, nil
	}
	kind, err := Classify(term)
	if err != nil {
		return FactRef{}, err
	}
	if err := s.acc.Add(vec); err != nil {
		return FactRef{}, errors.Wrapf(err, "aggregate %s", term)
	}

	f := &Fact{Seq: s.clock.Next(), ID: id, Name: name, Term: term, Vector: vec, Kind: kind}
	s.index(f)

	report := s.Capacity()
	ratio := 0.0
	if report.MaxItems > 0 {
		ratio = float64(report.Items) / float64(report.MaxItems)
	}
	s.metrics.observeAdd(kind, len(s.facts), ratio)

	ref := f.Ref()
	if report.Saturated {
		w := &CapacityWarning{Report: report}
		ref.Warning = w
		if !s.saturated {
			s.logger.Warn("knowledge aggregate saturated",
				zap.String("strategy", string(report.Strategy)),
				zap.Int("items", report.Items),
				zap.Int("max_items", report.MaxItems),
				zap.Float64("expected_similarity", report.ExpectedSimilarity),
				zap.Float64("noise_floor", report.NoiseFloor))
		}
	}
	s.saturated = report.Saturated
	return ref, nil
}

func (s *Store) index(f *Fact) {
	s.facts = append(s.facts, f)
	s.byID[f.ID] = f
	s.bySeq[f.Seq] = f
	s.byOperator[f.Term.Operator] = append(s.byOperator[f.Term.Operator], f)

	switch f.Kind {
	case KindRule:
		s.rules = append(s.rules, f)
	case KindNegation:
		inner, _ := ir.AsNegation(f.Term)
		key := ir.MustFactID(inner)
		s.negations[key] = append(s.negations[key], f)
	case KindProperty:
		rel, prop, _ := ir.AsPropertyDeclaration(f.Term)
		if s.properties[rel] == nil {
			s.properties[rel] = make(map[ir.RelationProperty]*Fact)
		}
		if _, ok := s.properties[rel][prop]; !ok {
			s.properties[rel][prop] = f
		}
	}
}

// Len is the number of stored facts.
func (s *Store) Len() int { return len(s.facts) }

// LastSeq is the sequence number of the newest fact.
func (s *Store) LastSeq() int64 { return s.clock.Current() }

// Strategy returns the algebra the vectors belong to.
func (s *Store) Strategy() hdc.Strategy { return s.alg }

// Facts returns every fact in insertion order.
func (s *Store) Facts() []*Fact {
	out := make([]*Fact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Get returns the fact with sequence number seq.
func (s *Store) Get(seq int64) (*Fact, bool) {
	f, ok := s.bySeq[seq]
	return f, ok
}

// Lookup returns the fact with the given term, if stored.
func (s *Store) Lookup(term ir.Term) (*Fact, bool) {
	id, err := ir.FactID(term)
	if err != nil {
		return nil, false
	}
	f, ok := s.byID[id]
	return f, ok
}

// ByOperator returns the facts with operator op in insertion order.
func (s *Store) ByOperator(op string) []*Fact {
	return s.byOperator[op]
}

// Rules returns every Implies fact in insertion order.
func (s *Store) Rules() []*Fact {
	return s.rules
}

// NegationsOf returns the stored Not(t) facts for a term, oldest first.
func (s *Store) NegationsOf(t ir.Term) []*Fact {
	id, err := ir.FactID(t)
	if err != nil {
		return nil
	}
	return s.negations[id]
}

// Property returns the declaration of prop for relation rel.
func (s *Store) Property(rel string, prop ir.RelationProperty) (*Fact, bool) {
	f, ok := s.properties[rel][prop]
	return f, ok
}

// HasProperty reports whether rel was declared with prop.
func (s *Store) HasProperty(rel string, prop ir.RelationProperty) bool {
	_, ok := s.Property(rel, prop)
	return ok
}

// Aggregate returns the superposition of every fact vector; ok is false
// while the store is empty.
func (s *Store) Aggregate() (hdc.Vector, bool) {
	return s.acc.Vector()
}

// Capacity estimates the aggregate's saturation.
func (s *Store) Capacity() hdc.CapacityReport {
	return s.alg.Capacity(s.acc.Count())
}

// Rebuild recomputes the aggregate from the facts.
func (s *Store) Rebuild() error {
	acc, err := s.rebuild()
	if err != nil {
		return err
	}
	s.acc = acc
	return nil
}

func (s *Store) rebuild() (hdc.Accumulator, error) {
	acc := s.alg.NewAccumulator()
	for _, f := range s.facts {
		if err := acc.Add(f.Vector); err != nil {
			return nil, errors.Wrapf(err, "rebuild fact #%d", f.Seq)
		}
	}
	return acc, nil
}

// ErrAggregateDrift reports an incremental aggregate that no longer equals
// a rebuild from the facts.
var ErrAggregateDrift = errors.New("knowledge aggregate differs from rebuild")

// VerifyAggregate compares the incremental aggregate with a fresh rebuild.
func (s *Store) VerifyAggregate() error {
	acc, err := s.rebuild()
	if err != nil {
		return err
	}
	want, wantOK := acc.Vector()
	got, gotOK := s.acc.Vector()
	if wantOK != gotOK || acc.Count() != s.acc.Count() {
		return errors.Wrapf(ErrAggregateDrift, "count %d, facts %d", s.acc.Count(), acc.Count())
	}
	if wantOK && !got.Equal(want) {
		return errors.WithStack(ErrAggregateDrift)
	}
	return nil
}
