package ir

import (
	"strings"
)

// Term is a sealed interface over the structural shapes the engine needs to
// introspect. Only Atom, Var and Compound implement it.
//
// Facts, rules and negations are all Compounds; the operator decides the
// role (see operators.go). Vectors never stand in for structure: anything
// that needs to know "is this a rule?" looks at the Term, not at similarity.
type Term interface {
	term() // Sealed
	String() string
}

// Atom is a named constant.
type Atom struct {
	Name string `json:"name"`
}

func (Atom) term() {}

// String renders the atom as its bare name.
func (a Atom) String() string { return a.Name }

// Var is a hole in a query pattern or a variable in a rule.
type Var struct {
	Name string `json:"name"`
}

func (Var) term() {}

// String renders the variable with its "?" sigil.
func (v Var) String() string { return "?" + v.Name }

// Compound is an operator applied to ordered arguments.
type Compound struct {
	Operator string `json:"operator"`
	Args     []Term `json:"args"`
}

func (Compound) term() {}

// String renders the compound in prefix form, parenthesising nested
// compounds: "isA Tweety Bird", "Not (canFly Opus)".
func (c Compound) String() string {
	var b strings.Builder
	b.WriteString(c.Operator)
	for _, arg := range c.Args {
		b.WriteByte(' ')
		if nested, ok := arg.(Compound); ok {
			b.WriteByte('(')
			b.WriteString(nested.String())
			b.WriteByte(')')
			continue
		}
		b.WriteString(arg.String())
	}
	return b.String()
}

// A is shorthand for an Atom.
func A(name string) Atom { return Atom{Name: name} }

// V is shorthand for a Var.
func V(name string) Var { return Var{Name: name} }

// C builds a Compound. Bare strings are read with the CLI convention:
// "?x" is a Var, anything else an Atom.
func C(operator string, args ...any) Compound {
	out := make([]Term, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case Term:
			out[i] = v
		case string:
			out[i] = ParseWord(v)
		default:
			panic("ir.C: unsupported argument type")
		}
	}
	return Compound{Operator: operator, Args: out}
}

// ParseWord reads a single word: "?x" is a Var, anything else an Atom.
func ParseWord(w string) Term {
	if len(w) > 1 && w[0] == '?' {
		return Var{Name: w[1:]}
	}
	return Atom{Name: w}
}

// IsGround reports whether t contains no variables.
func IsGround(t Term) bool {
	switch v := t.(type) {
	case Var:
		return false
	case Compound:
		for _, a := range v.Args {
			if !IsGround(a) {
				return false
			}
		}
	}
	return true
}

// Vars returns the distinct variable names of t in order of first appearance.
func Vars(t Term) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Term)
	walk = func(t Term) {
		switch v := t.(type) {
		case Var:
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v.Name)
			}
		case Compound:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(t)
	return out
}

// Equal reports structural equality.
func Equal(a, b Term) bool {
	switch x := a.(type) {
	case Atom:
		y, ok := b.(Atom)
		return ok && x.Name == y.Name
	case Var:
		y, ok := b.(Var)
		return ok && x.Name == y.Name
	case Compound:
		y, ok := b.(Compound)
		if !ok || x.Operator != y.Operator || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Rename returns t with every variable renamed by fn.
func Rename(t Term, fn func(string) string) Term {
	switch v := t.(type) {
	case Var:
		return Var{Name: fn(v.Name)}
	case Compound:
		args := make([]Term, len(v.Args))
		for i, a := range v.Args {
			args[i] = Rename(a, fn)
		}
		return Compound{Operator: v.Operator, Args: args}
	}
	return t
}
