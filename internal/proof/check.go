package proof

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// CheckOptions mirror the search options a tree depends on.
type CheckOptions struct {
	ClosedWorld bool
}

// CheckError locates the first node a store does not support.
type CheckError struct {
	Node    int
	Goal    string
	Problem string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("proof node %d (%s): %s", e.Node, e.Goal, e.Problem)
}

// IsCheckError reports whether err is a CheckError.
func IsCheckError(err error) bool {
	var ce *CheckError
	return errors.As(err, &ce)
}

// Check re-verifies a proof tree against store without searching: every
// valid node must follow from its supporting facts and its children by its
// method, and every explicit-negation failure must cite a stored negation.
// Other failure nodes record search history and are not verified.
func Check(t *Tree, store *kb.Store, opts CheckOptions) error {
	if t.RootNode() == nil {
		return errors.New("empty proof tree")
	}
	c := &checker{tree: t, store: store, opts: opts}
	return c.node(t.Root)
}

type checker struct {
	tree  *Tree
	store *kb.Store
	opts  CheckOptions
	names renamer
}

func (c *checker) errorf(i int, format string, args ...any) error {
	goal := ""
	if g := c.tree.Nodes[i].Goal; g != nil {
		goal = g.String()
	}
	return errors.WithStack(&CheckError{Node: i, Goal: goal, Problem: fmt.Sprintf(format, args...)})
}

func (c *checker) fact(i int, k int, kind kb.Kind) (*kb.Fact, error) {
	n := c.tree.Nodes[i]
	if k >= len(n.Support) {
		return nil, c.errorf(i, "missing support #%d", k+1)
	}
	f, ok := c.store.Get(n.Support[k])
	if !ok {
		return nil, c.errorf(i, "fact #%d not in store", n.Support[k])
	}
	if f.Kind != kind {
		return nil, c.errorf(i, "fact #%d is a %s, want %s", f.Seq, f.Kind, kind)
	}
	return f, nil
}

func (c *checker) property(i int, rel string, prop ir.RelationProperty, k int) error {
	f, err := c.fact(i, k, kb.KindProperty)
	if err != nil {
		return err
	}
	r, p, _ := ir.AsPropertyDeclaration(f.Term)
	if r != rel || p != prop {
		return c.errorf(i, "fact #%d does not declare %s %s", f.Seq, rel, prop)
	}
	return nil
}

func (c *checker) node(i int) error {
	if i < 0 || i >= len(c.tree.Nodes) {
		return errors.Newf("proof node %d out of range", i)
	}
	n := c.tree.Nodes[i]
	if n.Status != StatusValid {
		if n.Reason == ReasonExplicitNegation {
			return c.negation(i, n.Goal)
		}
		return nil
	}
	goal, ok := n.Goal.(ir.Compound)
	if !ok {
		return c.errorf(i, "goal is not a compound")
	}

	switch n.Method {
	case MethodDirect:
		if len(n.Support) != 1 {
			return c.errorf(i, "direct node cites %d facts", len(n.Support))
		}
		f, ok := c.store.Get(n.Support[0])
		if !ok {
			return c.errorf(i, "fact #%d not in store", n.Support[0])
		}
		return c.direct(i, goal, f)

	case MethodSymmetric:
		if len(goal.Args) != 2 {
			return c.errorf(i, "symmetric goal is not binary")
		}
		f, err := c.fact(i, 0, kb.KindAssertion)
		if err != nil {
			return err
		}
		if err := c.property(i, goal.Operator, ir.PropertySymmetric, 1); err != nil {
			return err
		}
		swapped := ir.Compound{Operator: goal.Operator, Args: []ir.Term{goal.Args[1], goal.Args[0]}}
		if _, ok := Unify(swapped, c.names.apart(f.Term), Subst{}); !ok {
			return c.errorf(i, "fact #%d is not the swapped goal", f.Seq)
		}
		return c.live(i, goal)

	case MethodReflexive:
		if len(goal.Args) != 2 {
			return c.errorf(i, "reflexive goal is not binary")
		}
		if err := c.property(i, goal.Operator, ir.PropertyReflexive, 0); err != nil {
			return err
		}
		if _, ok := Unify(goal.Args[0], goal.Args[1], Subst{}); !ok {
			return c.errorf(i, "arguments differ")
		}
		return nil

	case MethodTransitive:
		return c.transitive(i, goal)

	case MethodRule:
		return c.rule(i, goal)

	case MethodNegation:
		return c.notNode(i, goal)

	case MethodCompound:
		return c.compound(i, goal)
	}
	return c.errorf(i, "unknown method %q", n.Method)
}

func (c *checker) direct(i int, goal ir.Compound, f *kb.Fact) error {
	if _, ok := Unify(goal, c.names.apart(f.Term), Subst{}); !ok {
		return c.errorf(i, "fact #%d does not match", f.Seq)
	}
	return c.live(i, goal)
}

// live rejects a ground goal that a stored negation has since revised.
func (c *checker) live(i int, goal ir.Compound) error {
	if !ir.IsGround(goal) {
		return nil
	}
	if neg, ok := negated(c.store, goal); ok {
		return c.errorf(i, "revised by negation #%d", neg.Seq)
	}
	return nil
}

func (c *checker) negation(i int, goal ir.Term) error {
	f, err := c.fact(i, 0, kb.KindNegation)
	if err != nil {
		return err
	}
	inner, _ := ir.AsNegation(f.Term)
	if !ir.Equal(inner, goal) {
		return c.errorf(i, "negation #%d is about %s", f.Seq, inner)
	}
	return nil
}

func (c *checker) transitive(i int, goal ir.Compound) error {
	n := c.tree.Nodes[i]
	if len(goal.Args) != 2 {
		return c.errorf(i, "transitive goal is not binary")
	}
	if err := c.property(i, goal.Operator, ir.PropertyTransitive, 0); err != nil {
		return err
	}
	if len(n.Children) < 2 {
		return c.errorf(i, "chain has %d hops", len(n.Children))
	}
	at := goal.Args[0]
	for _, ci := range n.Children {
		if err := c.node(ci); err != nil {
			return err
		}
		child := c.tree.Nodes[ci]
		hop, ok := child.Goal.(ir.Compound)
		if !ok || !child.Valid() || hop.Operator != goal.Operator || len(hop.Args) != 2 {
			return c.errorf(ci, "not a valid hop of %s", goal.Operator)
		}
		if !ir.Equal(hop.Args[0], at) {
			return c.errorf(ci, "chain broken at %s", at)
		}
		at = hop.Args[1]
	}
	if !ir.Equal(at, goal.Args[1]) {
		return c.errorf(i, "chain ends at %s", at)
	}
	return nil
}

func (c *checker) rule(i int, goal ir.Compound) error {
	n := c.tree.Nodes[i]
	f, err := c.fact(i, 0, kb.KindRule)
	if err != nil {
		return err
	}
	ante, cons, _ := ir.AsRule(c.names.apart(f.Term))
	s, ok := Unify(cons, goal, Subst{})
	if !ok {
		return c.errorf(i, "rule #%d does not conclude the goal", f.Seq)
	}
	if len(n.Children) != 1 {
		return c.errorf(i, "rule node has %d children", len(n.Children))
	}
	child := c.tree.Nodes[n.Children[0]]
	if !child.Valid() {
		return c.errorf(n.Children[0], "premise is %s", child.Status)
	}
	if _, ok := Unify(ante, child.Goal, s); !ok {
		return c.errorf(n.Children[0], "premise does not match rule #%d", f.Seq)
	}
	if err := c.node(n.Children[0]); err != nil {
		return err
	}
	return c.live(i, goal)
}

func (c *checker) notNode(i int, goal ir.Compound) error {
	n := c.tree.Nodes[i]
	if goal.Operator != ir.OpNot || len(goal.Args) != 1 {
		return c.errorf(i, "negation node goal is not Not")
	}
	if len(n.Support) > 0 {
		return c.negation(i, goal.Args[0])
	}
	if !c.opts.ClosedWorld {
		return c.errorf(i, "negation as failure needs closed-world mode")
	}
	if len(n.Children) != 1 {
		return c.errorf(i, "negation node has %d children", len(n.Children))
	}
	child := c.tree.Nodes[n.Children[0]]
	if child.Valid() || child.Reason != ReasonNoEvidence {
		return c.errorf(n.Children[0], "inner goal did not fail for lack of evidence")
	}
	if !ir.Equal(child.Goal, goal.Args[0]) {
		return c.errorf(n.Children[0], "inner goal differs")
	}
	return nil
}

func (c *checker) compound(i int, goal ir.Compound) error {
	n := c.tree.Nodes[i]
	switch goal.Operator {
	case ir.OpAnd:
		if len(n.Children) != len(goal.Args) {
			return c.errorf(i, "%d conjuncts, %d children", len(goal.Args), len(n.Children))
		}
		s := Subst{}
		for k, ci := range n.Children {
			child := c.tree.Nodes[ci]
			if !child.Valid() {
				return c.errorf(ci, "conjunct is %s", child.Status)
			}
			var ok bool
			if s, ok = Unify(goal.Args[k], child.Goal, s); !ok {
				return c.errorf(ci, "conjunct %d does not match", k+1)
			}
			if err := c.node(ci); err != nil {
				return err
			}
		}
		return nil

	case ir.OpOr:
		if len(n.Children) != 1 {
			return c.errorf(i, "disjunction node has %d children", len(n.Children))
		}
		ci := n.Children[0]
		child := c.tree.Nodes[ci]
		if !child.Valid() {
			return c.errorf(ci, "disjunct is %s", child.Status)
		}
		for _, arg := range goal.Args {
			if _, ok := Unify(arg, child.Goal, Subst{}); ok {
				return c.node(ci)
			}
		}
		return c.errorf(ci, "matches no disjunct")
	}
	return c.errorf(i, "compound method on %s", goal.Operator)
}
