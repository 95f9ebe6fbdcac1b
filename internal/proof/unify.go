package proof

import (
	"strconv"

	"github.com/roach88/hyperlore/internal/ir"
)

// Subst maps variable names to terms. Values are never mutated; extend
// copies.
type Subst map[string]ir.Term

func (s Subst) walk(t ir.Term) ir.Term {
	for {
		v, ok := t.(ir.Var)
		if !ok {
			return t
		}
		bound, ok := s[v.Name]
		if !ok {
			return t
		}
		t = bound
	}
}

// Apply substitutes every bound variable in t, recursively.
func (s Subst) Apply(t ir.Term) ir.Term {
	t = s.walk(t)
	c, ok := t.(ir.Compound)
	if !ok {
		return t
	}
	args := make([]ir.Term, len(c.Args))
	for i, a := range c.Args {
		args[i] = s.Apply(a)
	}
	return ir.Compound{Operator: c.Operator, Args: args}
}

func (s Subst) extend(name string, t ir.Term) Subst {
	out := make(Subst, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = t
	return out
}

// Restrict renders the bindings of vars under s. Unbound variables are
// omitted.
func (s Subst) Restrict(vars []string) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		t := s.Apply(ir.V(v))
		if tv, ok := t.(ir.Var); ok && tv.Name == v {
			continue
		}
		out[v] = t.String()
	}
	return out
}

// Unify extends s so that a and b become equal, with occurs check.
func Unify(a, b ir.Term, s Subst) (Subst, bool) {
	a, b = s.walk(a), s.walk(b)

	if x, ok := a.(ir.Var); ok {
		if y, ok := b.(ir.Var); ok && y.Name == x.Name {
			return s, true
		}
		if occurs(x.Name, b, s) {
			return nil, false
		}
		return s.extend(x.Name, b), true
	}
	if _, ok := b.(ir.Var); ok {
		return Unify(b, a, s)
	}

	switch x := a.(type) {
	case ir.Atom:
		y, ok := b.(ir.Atom)
		return s, ok && x.Name == y.Name
	case ir.Compound:
		y, ok := b.(ir.Compound)
		if !ok || x.Operator != y.Operator || len(x.Args) != len(y.Args) {
			return nil, false
		}
		for i := range x.Args {
			s, ok = Unify(x.Args[i], y.Args[i], s)
			if !ok {
				return nil, false
			}
		}
		return s, true
	}
	return nil, false
}

func occurs(name string, t ir.Term, s Subst) bool {
	switch v := s.walk(t).(type) {
	case ir.Var:
		return v.Name == name
	case ir.Compound:
		for _, a := range v.Args {
			if occurs(name, a, s) {
				return true
			}
		}
	}
	return false
}

// renamer renames stored terms apart from the goal's variables.
type renamer struct {
	n int
}

func (r *renamer) apart(t ir.Term) ir.Term {
	if ir.IsGround(t) {
		return t
	}
	r.n++
	suffix := "#" + strconv.Itoa(r.n)
	return ir.Rename(t, func(name string) string { return name + suffix })
}
