package ir

import (
	"fmt"
	"strings"
)

// Pattern is a flat query shape: an operator over positional arguments,
// each either a known Atom or a hole (Var).
type Pattern struct {
	Operator string `json:"operator" yaml:"operator"`
	Args     []Term `json:"args" yaml:"args"`
}

// ParsePattern reads "sell ?who Bob Car ?price".
func ParsePattern(line string) (Pattern, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	p := Pattern{Operator: words[0], Args: make([]Term, 0, len(words)-1)}
	for _, w := range words[1:] {
		p.Args = append(p.Args, ParseWord(w))
	}
	return p, nil
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(line string) Pattern {
	p, err := ParsePattern(line)
	if err != nil {
		panic(err)
	}
	return p
}

// Holes returns the hole names in positional order. A name repeated at two
// positions appears once.
func (p Pattern) Holes() []string {
	return Vars(p.Term())
}

// Term views the pattern as a Compound.
func (p Pattern) Term() Compound {
	return Compound{Operator: p.Operator, Args: p.Args}
}

// Validate rejects nested compounds; patterns only carry atoms and holes.
func (p Pattern) Validate() error {
	if p.Operator == "" {
		return fmt.Errorf("pattern has no operator")
	}
	for i, a := range p.Args {
		switch a.(type) {
		case Atom, Var:
		default:
			return fmt.Errorf("pattern argument %d: want atom or hole, got %s", i+1, a)
		}
	}
	return nil
}

func (p Pattern) String() string {
	return p.Term().String()
}
