package query

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/ir"
)

// FindAll returns a binding map for every stored fact matching p, in
// insertion order. A pattern without holes yields one empty map per match.
func (e *Engine) FindAll(p ir.Pattern) ([]Bindings, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "findAll")
	}
	var out []Bindings
	for _, f := range e.store.ByOperator(p.Operator) {
		if b, ok := MatchTerm(p, f.Term); ok {
			out = append(out, b)
		}
	}
	e.logger.Debug("findAll",
		zap.String("pattern", p.String()),
		zap.Int("matches", len(out)),
	)
	return out, nil
}

// MatchTerm matches a stored term against a pattern. Known arguments must
// be equal atoms; a hole binds to the rendered argument, and a hole used
// twice must bind the same value both times.
func MatchTerm(p ir.Pattern, t ir.Compound) (Bindings, bool) {
	if t.Operator != p.Operator || len(t.Args) != len(p.Args) {
		return nil, false
	}
	b := Bindings{}
	for i, pa := range p.Args {
		switch want := pa.(type) {
		case ir.Atom:
			if !ir.Equal(want, t.Args[i]) {
				return nil, false
			}
		case ir.Var:
			val := t.Args[i].String()
			if prev, bound := b[want.Name]; bound && prev != val {
				return nil, false
			}
			b[want.Name] = val
		}
	}
	return b, true
}
