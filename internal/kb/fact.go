package kb

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// Kind classifies a fact by the shape of its term.
type Kind string

const (
	KindAssertion Kind = "assertion"
	KindRule      Kind = "rule"
	KindNegation  Kind = "negation"
	KindProperty  Kind = "property"
)

// Fact is one stored term with its vector. Immutable once stored.
type Fact struct {
	Seq    int64
	ID     string
	Name   string
	Term   ir.Compound
	Vector hdc.Vector
	Kind   Kind
}

// Ref returns the caller-facing reference.
func (f *Fact) Ref() FactRef {
	return FactRef{Seq: f.Seq, ID: f.ID, Name: f.Name, Kind: f.Kind}
}

func (f *Fact) String() string {
	return fmt.Sprintf("#%d %s", f.Seq, f.Term)
}

// FactRef identifies a stored fact.
type FactRef struct {
	Seq  int64  `json:"seq"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind Kind   `json:"kind"`

	// Duplicate is set when the term was already stored; Seq and ID are
	// those of the original.
	Duplicate bool `json:"duplicate,omitempty"`

	// Warning is set while the aggregate is saturated.
	Warning *CapacityWarning `json:"warning,omitempty"`
}

// Classify determines the kind of a term and rejects malformed reserved
// shapes.
func Classify(t ir.Compound) (Kind, error) {
	switch t.Operator {
	case ir.OpImplies:
		if len(t.Args) != 2 {
			return "", errors.Newf("%s takes 2 arguments, got %d", ir.OpImplies, len(t.Args))
		}
		for _, a := range t.Args {
			if _, ok := a.(ir.Compound); !ok {
				return "", errors.Newf("%s arguments must be compound terms, got %q", ir.OpImplies, a.String())
			}
		}
		return KindRule, nil
	case ir.OpNot:
		if len(t.Args) != 1 {
			return "", errors.Newf("%s takes 1 argument, got %d", ir.OpNot, len(t.Args))
		}
		if _, ok := t.Args[0].(ir.Compound); !ok {
			return "", errors.Newf("%s argument must be a compound term, got %q", ir.OpNot, t.Args[0].String())
		}
		return KindNegation, nil
	case ir.OpAnd, ir.OpOr:
		return "", errors.Newf("%s is a goal connective; learn its parts as separate facts", t.Operator)
	}
	if _, ok := ir.PropertyOperators[t.Operator]; ok {
		if _, _, isDecl := ir.AsPropertyDeclaration(t); !isDecl {
			return "", errors.Newf("%s takes one relation name", t.Operator)
		}
		return KindProperty, nil
	}
	return KindAssertion, nil
}
