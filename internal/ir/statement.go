package ir

import (
	"fmt"
	"strings"
)

// ArgKind distinguishes the three shapes a statement argument can take.
type ArgKind string

const (
	ArgAtom      ArgKind = "atom" // Known value: an atom name
	ArgHole      ArgKind = "hole" // Unknown: "?name"
	ArgReference ArgKind = "ref"  // Reference to an earlier destination: "$name"
)

// ArgRef is one argument of a Statement as produced by the parser.
type ArgRef struct {
	Kind ArgKind `json:"kind" yaml:"kind"`
	Name string  `json:"name" yaml:"name"`
}

// String renders the argument with its sigil.
func (a ArgRef) String() string {
	switch a.Kind {
	case ArgHole:
		return "?" + a.Name
	case ArgReference:
		return "$" + a.Name
	default:
		return a.Name
	}
}

// Statement is the parser's output for one line: an operator applied to
// arguments, optionally bound to a destination name and exported.
//
// A statement with a Destination and no ExportName is a scratch binding: it
// is encoded and bound in scope (for use as a sub-term via $Destination) but
// not stored as a fact. Every other statement is stored.
type Statement struct {
	Destination string   `json:"destination,omitempty" yaml:"destination,omitempty"`
	ExportName  string   `json:"export_name,omitempty" yaml:"export,omitempty"`
	Operator    string   `json:"operator" yaml:"operator"`
	Args        []ArgRef `json:"args" yaml:"args"`
}

// IsScratch reports whether the statement only binds a destination.
func (s Statement) IsScratch() bool {
	return s.Destination != "" && s.ExportName == ""
}

// String renders the statement the way the CLI accepts it.
func (s Statement) String() string {
	var b strings.Builder
	if s.Destination != "" {
		b.WriteByte('@')
		b.WriteString(s.Destination)
		if s.ExportName != "" {
			b.WriteByte(':')
			b.WriteString(s.ExportName)
		}
		b.WriteByte(' ')
	}
	b.WriteString(s.Operator)
	for _, a := range s.Args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	return b.String()
}

// GraphDef is a named expansion: when a statement's operator names a graph,
// the body runs in a child scope with Params bound to the call arguments and
// the vector bound to Return becomes the operator's payload.
type GraphDef struct {
	Name   string      `json:"name" yaml:"name"`
	Params []string    `json:"params" yaml:"params"`
	Body   []Statement `json:"body" yaml:"body"`
	Return string      `json:"return" yaml:"return"`
}

// ParseStatement splits a line on whitespace using the sigil conventions:
// "@dest[:export]" prefix, "?hole", "$ref". It is a convenience for tests,
// scenario files and the CLI; it is not a grammar.
func ParseStatement(line string) (Statement, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return Statement{}, fmt.Errorf("empty statement")
	}

	var st Statement
	if strings.HasPrefix(words[0], "@") {
		dest := strings.TrimPrefix(words[0], "@")
		if name, export, found := strings.Cut(dest, ":"); found {
			st.Destination, st.ExportName = name, export
		} else {
			st.Destination = dest
		}
		if st.Destination == "" {
			return Statement{}, fmt.Errorf("empty destination in %q", line)
		}
		words = words[1:]
		if len(words) == 0 {
			return Statement{}, fmt.Errorf("statement %q has no operator", line)
		}
	}

	st.Operator = words[0]
	for _, w := range words[1:] {
		st.Args = append(st.Args, parseArg(w))
	}
	return st, nil
}

// MustParseStatement is like ParseStatement but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseStatement(line string) Statement {
	st, err := ParseStatement(line)
	if err != nil {
		panic(err)
	}
	return st
}

func parseArg(w string) ArgRef {
	switch {
	case len(w) > 1 && w[0] == '?':
		return ArgRef{Kind: ArgHole, Name: w[1:]}
	case len(w) > 1 && w[0] == '$':
		return ArgRef{Kind: ArgReference, Name: w[1:]}
	default:
		return ArgRef{Kind: ArgAtom, Name: w}
	}
}
