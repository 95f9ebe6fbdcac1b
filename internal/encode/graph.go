package encode

import (
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// DefineGraph registers a named expansion. Repeating an identical
// definition is a no-op; a different one is rejected, since it would
// silently change the vector of every fact already encoded with it.
func (e *Encoder) DefineGraph(g ir.GraphDef) error {
	if g.Name == "" {
		return errors.New("graph has no name")
	}
	if prev, exists := e.graphs[g.Name]; exists {
		if cmp.Equal(prev, g, cmpopts.EquateEmpty()) {
			return nil
		}
		return errors.Newf("graph %q already defined differently", g.Name)
	}
	if len(g.Params) > MaxArity {
		return errors.WithStack(&ArityError{Arity: len(g.Params)})
	}
	seen := make(map[string]bool, len(g.Params))
	for _, p := range g.Params {
		if p == "" || seen[p] {
			return errors.Newf("graph %q: empty or duplicate parameter %q", g.Name, p)
		}
		seen[p] = true
	}
	if g.Return == "" {
		return errors.Newf("graph %q has no return name", g.Name)
	}
	if len(g.Body) == 0 && !seen[g.Return] {
		return errors.Newf("graph %q: empty body cannot produce %q", g.Name, g.Return)
	}
	e.graphs[g.Name] = g
	e.order = append(e.order, g.Name)
	return nil
}

// Graph returns a registered graph.
func (e *Encoder) Graph(name string) (ir.GraphDef, bool) {
	g, ok := e.graphs[name]
	return g, ok
}

// Graphs lists registered graphs in definition order.
func (e *Encoder) Graphs() []ir.GraphDef {
	out := make([]ir.GraphDef, len(e.order))
	for i, n := range e.order {
		out[i] = e.graphs[n]
	}
	return out
}

// expand runs g's body in a child of the root scope with the parameters
// bound to args, and returns bind(Operator, result).
func (e *Encoder) expand(g ir.GraphDef, args []Binding, depth int) (hdc.Vector, error) {
	if depth >= maxExpansionDepth {
		return nil, errors.Newf("graph %q: expansion nested deeper than %d", g.Name, maxExpansionDepth)
	}
	if len(args) != len(g.Params) {
		return nil, errors.Newf("graph %q takes %d arguments, got %d", g.Name, len(g.Params), len(args))
	}

	scope := e.root.Child()
	scope.expansion = true
	for i, p := range g.Params {
		scope.Bind(p, args[i])
	}
	for _, st := range g.Body {
		term, vec, err := e.encodeStatement(st, scope, depth+1)
		if err != nil {
			return nil, errors.Wrapf(err, "graph %q", g.Name)
		}
		if st.Destination != "" {
			scope.Bind(st.Destination, Binding{Term: term, Vector: vec})
		}
	}

	result, ok := scope.Lookup(g.Return)
	if !ok {
		return nil, errors.Wrapf(&hdc.UnboundReferenceError{Name: g.Return}, "graph %q return", g.Name)
	}
	opVec, err := e.Operator(g.Name)
	if err != nil {
		return nil, err
	}
	return e.alg.Bind(opVec, result.Vector)
}
