package query

import (
	"cmp"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/encode"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// Default tuning.
const (
	DefaultTopK      = 5
	DefaultFactTopK  = 8
	DefaultMaxRounds = 3
)

// Options tune Query.
type Options struct {
	// TopK bounds how many decoded atoms per hole and per source enter the
	// shortlist.
	TopK int

	// FactTopK bounds how many resonant facts are validated.
	FactTopK int

	// MaxRounds bounds coordinate ascent.
	MaxRounds int

	// Profile supplies the acceptance band and the decode floor. Zero means
	// the strategy's default.
	Profile hdc.Profile
}

func (o Options) withDefaults(alg hdc.Strategy) Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.FactTopK <= 0 {
		o.FactTopK = DefaultFactTopK
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.Profile == (hdc.Profile{}) {
		o.Profile = alg.Profile()
	}
	return o
}

// Engine answers queries against one session's encoder and store.
//
// Not safe for concurrent use; the session serialises access.
type Engine struct {
	enc    *encode.Encoder
	store  *kb.Store
	opts   Options
	logger *zap.Logger
}

// New returns an Engine. A nil logger discards output.
func New(enc *encode.Encoder, store *kb.Store, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		enc:    enc,
		store:  store,
		opts:   opts.withDefaults(enc.Strategy()),
		logger: logger,
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// resonant is a stored fact ranked by similarity to the partial encoding.
type resonant struct {
	fact *kb.Fact
	sim  float64
}

// fill is the outcome of validating one resonant fact.
type fill struct {
	fact   *kb.Fact
	values map[string]string
	score  float64

	// recall is each value's similarity to the aggregate decode of its
	// hole; mean averages it over holes.
	recall map[string]float64
	mean   float64
}

// residue maps a 1-based position to what remains of a source vector
// after unbinding the operator and that position's marker.
type residue map[int]hdc.Vector

// lookup is the state of one Query.
type lookup struct {
	p     ir.Pattern
	order []string
	holes map[string][]int
	op    hdc.Vector
	agg   residue
	short *shortlist
}

// Query fills the holes of p. Unknown operators or atoms produce a
// no_match result rather than an error; errors are reserved for malformed
// patterns and algebra failures.
func (e *Engine) Query(p ir.Pattern) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "query")
	}
	if len(p.Args) > encode.MaxArity {
		return nil, errors.WithStack(&encode.ArityError{Arity: len(p.Args)})
	}

	vocab := e.enc.Vocabulary()
	op, ok := vocab.Lookup(p.Operator)
	if !ok {
		e.logger.Debug("query operator unknown", zap.String("operator", p.Operator))
		return noMatch(), nil
	}
	l := &lookup{p: p, op: op, holes: make(map[string][]int)}
	known := make(map[int]hdc.Vector)
	for i, a := range p.Args {
		switch v := a.(type) {
		case ir.Atom:
			vec, ok := vocab.Lookup(v.Name)
			if !ok {
				e.logger.Debug("query atom unknown", zap.String("atom", v.Name))
				return noMatch(), nil
			}
			known[i+1] = vec
		case ir.Var:
			l.holes[v.Name] = append(l.holes[v.Name], i+1)
		}
	}
	l.order = p.Holes()
	l.short = newShortlist(l.order)

	partial, err := e.enc.EncodePartial(p.Operator, known)
	if err != nil {
		return nil, err
	}
	facts, err := e.resonate(p, partial)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return noMatch(), nil
	}

	if err := e.accelerate(l); err != nil {
		return nil, err
	}
	for _, r := range facts {
		raw, err := e.residues(r.fact.Vector, l)
		if err != nil {
			return nil, err
		}
		if err := e.decode(raw, l); err != nil {
			return nil, err
		}
	}

	fills := make([]fill, 0, len(facts))
	for _, r := range facts {
		f, err := e.validate(l, r.fact)
		if err != nil {
			return nil, err
		}
		if !confirmed(p, f) {
			continue
		}
		if err := e.recall(l, &f); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	e.logger.Debug("query validated",
		zap.String("pattern", p.String()),
		zap.Int("resonant", len(facts)),
		zap.Int("confirmed", len(fills)),
	)
	if len(fills) == 0 {
		return noMatch(), nil
	}
	// Stable: equal decodes keep the better validation, then resonance order.
	slices.SortStableFunc(fills, func(a, b fill) int {
		if c := cmp.Compare(b.mean, a.mean); c != 0 {
			return c
		}
		return cmp.Compare(b.score, a.score)
	})

	res, err := e.score(l, fills)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query answered",
		zap.String("pattern", p.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// resonate ranks every stored fact by similarity to partial and keeps the
// top FactTopK whose metadata does not contradict p.
func (e *Engine) resonate(p ir.Pattern, partial hdc.Vector) ([]resonant, error) {
	alg := e.enc.Strategy()
	all := e.store.Facts()
	ranked := make([]resonant, 0, len(all))
	for _, f := range all {
		sim, err := alg.Similarity(partial, f.Vector)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, resonant{fact: f, sim: sim})
	}
	slices.SortStableFunc(ranked, func(a, b resonant) int {
		return cmp.Compare(b.sim, a.sim)
	})
	if len(ranked) > e.opts.FactTopK {
		ranked = ranked[:e.opts.FactTopK]
	}
	out := ranked[:0]
	for _, r := range ranked {
		if consistent(p, r.fact.Term) {
			out = append(out, r)
		}
	}
	return out, nil
}

// consistent is MatchTerm without the repeated-hole constraint: it only
// rejects facts whose operator, arity or known arguments disagree.
func consistent(p ir.Pattern, t ir.Compound) bool {
	if t.Operator != p.Operator || len(t.Args) != len(p.Args) {
		return false
	}
	for i, a := range p.Args {
		if atom, ok := a.(ir.Atom); ok && !ir.Equal(atom, t.Args[i]) {
			return false
		}
	}
	return true
}

// confirmed reports whether the fact's metadata is exactly the filled
// pattern.
func confirmed(p ir.Pattern, f fill) bool {
	for _, name := range p.Holes() {
		if _, ok := f.values[name]; !ok {
			return false
		}
	}
	return ir.Equal(instantiate(p, f.values), f.fact.Term)
}

// accelerate decodes holes straight from the knowledge aggregate and keeps
// the residues for scoring.
func (e *Engine) accelerate(l *lookup) error {
	if len(l.holes) == 0 {
		return nil
	}
	agg, ok := e.store.Aggregate()
	if !ok {
		return nil
	}
	raw, err := e.residues(agg, l)
	if err != nil {
		return err
	}
	l.agg = raw
	return e.decode(raw, l)
}

func (e *Engine) residues(src hdc.Vector, l *lookup) (residue, error) {
	alg := e.enc.Strategy()
	inner, err := alg.Unbind(src, l.op)
	if err != nil {
		return nil, err
	}
	out := make(residue)
	for _, positions := range l.holes {
		for _, pos := range positions {
			marker, err := e.enc.Positions().Marker(pos)
			if err != nil {
				return nil, err
			}
			if out[pos], err = alg.Unbind(inner, marker); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// decode adds the atoms nearest each hole's residue to the shortlist.
func (e *Engine) decode(raw residue, l *lookup) error {
	alg := e.enc.Strategy()
	cands := e.enc.Candidates()
	for name, positions := range l.holes {
		for _, pos := range positions {
			matches, err := alg.TopKSimilar(raw[pos], cands, e.opts.TopK)
			if err != nil {
				return err
			}
			for _, m := range matches {
				if m.Similarity >= e.opts.Profile.Floor {
					l.short.add(name, m.Name, m.Similarity)
				}
			}
		}
	}
	return nil
}

// recall scores a confirmed fill against the aggregate decode: each value's
// similarity to its hole's residue, averaged over repeated positions.
func (e *Engine) recall(l *lookup, f *fill) error {
	f.recall = make(map[string]float64, len(l.order))
	if len(l.order) == 0 || l.agg == nil {
		return nil
	}
	alg := e.enc.Strategy()
	sum := 0.0
	for _, name := range l.order {
		vec, ok := e.enc.Vocabulary().Lookup(f.values[name])
		if !ok {
			return errors.Newf("decoded value %q is not in the vocabulary", f.values[name])
		}
		positions := l.holes[name]
		hole := 0.0
		for _, pos := range positions {
			sim, err := alg.Similarity(l.agg[pos], vec)
			if err != nil {
				return err
			}
			hole += sim
		}
		f.recall[name] = hole / float64(len(positions))
		sum += f.recall[name]
	}
	f.mean = sum / float64(len(l.order))
	return nil
}

// validate runs coordinate ascent for one fact: each hole in turn takes
// the shortlist value that maximises similarity between the re-encoded
// pattern and the fact vector, until nothing changes.
func (e *Engine) validate(l *lookup, f *kb.Fact) (fill, error) {
	current := make(map[string]string, len(l.order))
	for _, name := range l.order {
		if v := l.short.best(name); v != "" {
			current[name] = v
		}
	}

	scoreWith := func(values map[string]string) (float64, error) {
		vec, err := e.enc.EncodeTerm(instantiate(l.p, values))
		if err != nil {
			return 0, err
		}
		return e.enc.Strategy().Similarity(vec, f.Vector)
	}

	best, err := scoreWith(current)
	if err != nil {
		return fill{}, err
	}
	for round := 0; round < e.opts.MaxRounds; round++ {
		changed := false
		for _, name := range l.order {
			trial := maps.Clone(current)
			for _, cand := range l.short.values[name] {
				if cand == current[name] {
					continue
				}
				trial[name] = cand
				s, err := scoreWith(trial)
				if err != nil {
					return fill{}, err
				}
				if s > best {
					current[name] = cand
					best = s
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return fill{fact: f, values: current, score: best}, nil
}

// score turns confirmed fills into a Result. fills is sorted best first.
func (e *Engine) score(l *lookup, fills []fill) (*Result, error) {
	top := fills[0]
	res := &Result{Bindings: make(map[string]Binding, len(l.order)), Support: top.fact.Seq}

	ambiguous := false
	for _, other := range fills[1:] {
		if sameValues(top.values, other.values) {
			continue
		}
		if top.mean-other.mean < AmbiguityMargin {
			ambiguous = true
		}
		break
	}

	conf := top.score
	if len(l.order) > 0 {
		for _, name := range l.order {
			alts, err := e.alternatives(l, name, top.values[name])
			if err != nil {
				return nil, err
			}
			res.Bindings[name] = Binding{
				Value:        top.values[name],
				Similarity:   top.recall[name],
				Alternatives: alts,
			}
		}
		conf = top.mean * max(0, 1-HolePenalty*float64(len(l.order)-1))
	}
	if ambiguous {
		conf *= 1 - AmbiguityPenalty
	}

	res.Confidence = conf
	res.Band = e.opts.Profile.Band(conf)
	res.Success = res.Band != hdc.BandFailed
	switch {
	case !res.Success:
		res.Outcome = OutcomeBelowThreshold
	case ambiguous:
		res.Outcome = OutcomeAmbiguous
	default:
		res.Outcome = OutcomeMatch
	}
	return res, nil
}

// alternatives ranks the aggregate decode of a hole's first position,
// skipping the chosen value and anything under the floor.
func (e *Engine) alternatives(l *lookup, name, chosen string) ([]hdc.Match, error) {
	if l.agg == nil {
		return nil, nil
	}
	ranked, err := e.enc.Strategy().TopKSimilar(l.agg[l.holes[name][0]], e.enc.Candidates(), e.opts.TopK+1)
	if err != nil {
		return nil, err
	}
	var out []hdc.Match
	for _, m := range ranked {
		if m.Name == chosen || m.Similarity < e.opts.Profile.Floor {
			continue
		}
		out = append(out, m)
		if len(out) == e.opts.TopK {
			break
		}
	}
	return out, nil
}

func sameValues(a, b map[string]string) bool {
	return maps.Equal(a, b)
}

// instantiate fills p's holes with atoms.
func instantiate(p ir.Pattern, values map[string]string) ir.Compound {
	args := make([]ir.Term, len(p.Args))
	for i, a := range p.Args {
		if v, ok := a.(ir.Var); ok {
			if val, bound := values[v.Name]; bound {
				args[i] = ir.A(val)
				continue
			}
		}
		args[i] = a
	}
	return ir.Compound{Operator: p.Operator, Args: args}
}
