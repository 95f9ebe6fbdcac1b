package encode

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// maxExpansionDepth bounds nested graph expansion. A graph whose body calls
// itself fails here instead of recursing forever.
const maxExpansionDepth = 32

// Encoder applies the binding formula under one strategy.
//
// Not safe for concurrent use; a session serialises access.
type Encoder struct {
	alg    hdc.Strategy
	vocab  *Vocabulary
	pos    *Positions
	root   *Scope
	graphs map[string]ir.GraphDef
	order  []string
}

// New builds an encoder with a fresh vocabulary and root scope.
func New(alg hdc.Strategy) (*Encoder, error) {
	vocab := NewVocabulary(alg)
	pos, err := NewPositions(vocab)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		alg:    alg,
		vocab:  vocab,
		pos:    pos,
		root:   NewScope(),
		graphs: make(map[string]ir.GraphDef),
	}, nil
}

// Strategy returns the algebra in use.
func (e *Encoder) Strategy() hdc.Strategy { return e.alg }

// Vocabulary returns the session vocabulary.
func (e *Encoder) Vocabulary() *Vocabulary { return e.vocab }

// Positions returns the position markers.
func (e *Encoder) Positions() *Positions { return e.pos }

// Root returns the top-level destination scope.
func (e *Encoder) Root() *Scope { return e.root }

// Operator returns the vector of an operator atom.
func (e *Encoder) Operator(op string) (hdc.Vector, error) {
	return e.vocab.Atom(op)
}

// EncodeTerm encodes a term. Atoms are user atoms, variables live in the
// variable scope, compounds follow the binding formula (or their graph).
func (e *Encoder) EncodeTerm(t ir.Term) (hdc.Vector, error) {
	return e.encodeTerm(t, 0)
}

func (e *Encoder) encodeTerm(t ir.Term, depth int) (hdc.Vector, error) {
	switch v := t.(type) {
	case ir.Atom:
		return e.vocab.Atom(v.Name)
	case ir.Var:
		return e.vocab.Variable(v.Name)
	case ir.Compound:
		args := make([]Binding, len(v.Args))
		for i, a := range v.Args {
			vec, err := e.encodeTerm(a, depth)
			if err != nil {
				return nil, err
			}
			args[i] = Binding{Term: a, Vector: vec}
		}
		return e.apply(v.Operator, args, depth)
	default:
		return nil, errors.Newf("cannot encode %T", t)
	}
}

// Combine applies the binding formula to an operator and argument vectors.
func (e *Encoder) Combine(op string, args []hdc.Vector) (hdc.Vector, error) {
	known := make(map[int]hdc.Vector, len(args))
	for i, a := range args {
		known[i+1] = a
	}
	if len(args) > MaxArity {
		return nil, errors.WithStack(&ArityError{Arity: len(args)})
	}
	return e.EncodePartial(op, known)
}

// EncodePartial applies the binding formula over the known 1-based
// positions only. With no known positions the result is the operator atom.
func (e *Encoder) EncodePartial(op string, known map[int]hdc.Vector) (hdc.Vector, error) {
	opVec, err := e.Operator(op)
	if err != nil {
		return nil, err
	}
	if len(known) == 0 {
		return opVec, nil
	}
	positions := make([]int, 0, len(known))
	for p := range known {
		positions = append(positions, p)
	}
	slices.Sort(positions)

	tagged := make([]hdc.Vector, 0, len(positions))
	for _, p := range positions {
		marker, err := e.pos.Marker(p)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		b, err := e.alg.Bind(marker, known[p])
		if err != nil {
			return nil, errors.Wrapf(err, "%s position %d", op, p)
		}
		tagged = append(tagged, b)
	}
	inner, err := e.alg.Bundle(tagged)
	if err != nil {
		return nil, err
	}
	return e.alg.Bind(opVec, inner)
}

func (e *Encoder) apply(op string, args []Binding, depth int) (hdc.Vector, error) {
	if g, ok := e.graphs[op]; ok {
		return e.expand(g, args, depth)
	}
	vecs := make([]hdc.Vector, len(args))
	for i, a := range args {
		vecs[i] = a.Vector
	}
	return e.Combine(op, vecs)
}

// Resolve turns a statement into its term and argument bindings within
// scope. Unknown "$ref" names are UnboundReferenceErrors.
func (e *Encoder) Resolve(st ir.Statement, scope *Scope) (ir.Compound, []Binding, error) {
	if st.Operator == "" {
		return ir.Compound{}, nil, errors.New("statement has no operator")
	}
	args := make([]Binding, len(st.Args))
	terms := make([]ir.Term, len(st.Args))
	for i, a := range st.Args {
		b, err := e.resolveArg(a, scope)
		if err != nil {
			return ir.Compound{}, nil, err
		}
		args[i] = b
		terms[i] = b.Term
	}
	return ir.Compound{Operator: st.Operator, Args: terms}, args, nil
}

func (e *Encoder) resolveArg(a ir.ArgRef, scope *Scope) (Binding, error) {
	switch a.Kind {
	case ir.ArgHole:
		vec, err := e.vocab.Variable(a.Name)
		return Binding{Term: ir.Var{Name: a.Name}, Vector: vec}, err
	case ir.ArgReference:
		b, ok := scope.Lookup(a.Name)
		if !ok {
			return Binding{}, errors.WithStack(&hdc.UnboundReferenceError{Name: "$" + a.Name})
		}
		return b, nil
	case ir.ArgAtom, "":
		if scope.expansion {
			if b, ok := scope.Local(a.Name); ok {
				return b, nil
			}
		}
		vec, err := e.vocab.Atom(a.Name)
		return Binding{Term: ir.Atom{Name: a.Name}, Vector: vec}, err
	default:
		return Binding{}, errors.Newf("unknown argument kind %q", a.Kind)
	}
}

// EncodeStatement resolves and encodes st within scope. It does not bind
// the destination; callers decide whether the statement is stored.
func (e *Encoder) EncodeStatement(st ir.Statement, scope *Scope) (ir.Compound, hdc.Vector, error) {
	return e.encodeStatement(st, scope, 0)
}

func (e *Encoder) encodeStatement(st ir.Statement, scope *Scope, depth int) (ir.Compound, hdc.Vector, error) {
	term, args, err := e.Resolve(st, scope)
	if err != nil {
		return ir.Compound{}, nil, err
	}
	vec, err := e.apply(st.Operator, args, depth)
	if err != nil {
		return ir.Compound{}, nil, errors.Wrapf(err, "encode %q", st.String())
	}
	return term, vec, nil
}

// Candidates lists the user atoms a query may decode to.
func (e *Encoder) Candidates() []hdc.Candidate {
	return e.vocab.Candidates()
}

func (e *Encoder) String() string {
	return fmt.Sprintf("encoder(%s/%d, %d atoms, %d graphs)",
		e.alg.ID(), e.alg.Size(), e.vocab.Len(), len(e.graphs))
}
