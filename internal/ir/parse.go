package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseTerm reads a prefix term with parenthesised sub-terms:
//
//	isA Tweety Bird
//	Implies (isA ?x Bird) (canFly ?x)
//	Not (canFly Opus)
//
// Words follow ParseWord. The outermost term needs no parentheses.
func ParseTerm(line string) (Compound, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return Compound{}, fmt.Errorf("empty term")
	}
	p := &termParser{toks: toks}
	c, err := p.compound(false)
	if err != nil {
		return Compound{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if p.pos != len(p.toks) {
		return Compound{}, fmt.Errorf("parse %q: unexpected %q", line, p.toks[p.pos])
	}
	return c, nil
}

// MustParseTerm is like ParseTerm but panics on error.
func MustParseTerm(line string) Compound {
	c, err := ParseTerm(line)
	if err != nil {
		panic(err)
	}
	return c
}

func tokenize(s string) []string {
	s = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(s)
	return strings.Fields(s)
}

type termParser struct {
	toks []string
	pos  int
}

func (p *termParser) compound(nested bool) (Compound, error) {
	if p.pos >= len(p.toks) {
		return Compound{}, fmt.Errorf("missing operator")
	}
	op := p.toks[p.pos]
	if op == "(" || op == ")" || strings.HasPrefix(op, "?") {
		return Compound{}, fmt.Errorf("bad operator %q", op)
	}
	p.pos++
	c := Compound{Operator: op, Args: []Term{}}
	for p.pos < len(p.toks) {
		switch tok := p.toks[p.pos]; tok {
		case ")":
			if !nested {
				return Compound{}, fmt.Errorf("unbalanced )")
			}
			return c, nil
		case "(":
			p.pos++
			sub, err := p.compound(true)
			if err != nil {
				return Compound{}, err
			}
			if p.pos >= len(p.toks) || p.toks[p.pos] != ")" {
				return Compound{}, fmt.Errorf("unclosed (")
			}
			p.pos++
			c.Args = append(c.Args, sub)
		default:
			p.pos++
			c.Args = append(c.Args, ParseWord(tok))
		}
	}
	if nested {
		return Compound{}, fmt.Errorf("unclosed (")
	}
	return c, nil
}

// ParseCanonicalTerm decodes the canonical JSON form written by
// MarshalCanonical back into a Compound.
func ParseCanonicalTerm(data []byte) (Compound, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Compound{}, fmt.Errorf("decode term: %w", err)
	}
	t, err := termFromJSON(raw)
	if err != nil {
		return Compound{}, err
	}
	c, ok := t.(Compound)
	if !ok {
		return Compound{}, fmt.Errorf("decode term: want compound, got %s", t)
	}
	return c, nil
}

func termFromJSON(v any) (Term, error) {
	switch x := v.(type) {
	case string:
		return Atom{Name: x}, nil
	case map[string]any:
		if name, ok := x["var"].(string); ok && len(x) == 1 {
			return Var{Name: name}, nil
		}
		op, ok := x["op"].(string)
		rawArgs, okArgs := x["args"].([]any)
		if !ok || !okArgs || len(x) != 2 {
			return nil, fmt.Errorf("decode term: unrecognised object %v", x)
		}
		args := make([]Term, len(rawArgs))
		for i, a := range rawArgs {
			t, err := termFromJSON(a)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return Compound{Operator: op, Args: args}, nil
	}
	return nil, fmt.Errorf("decode term: unexpected %T", v)
}
