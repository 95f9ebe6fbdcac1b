package compiler

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hyperlore/internal/ir"
)

// Theory is a set of graph definitions and the lines to learn after them.
type Theory struct {
	Graphs []GraphSpec `yaml:"graphs,omitempty" json:"graphs,omitempty"`

	// Learn lines are statements ("@dest isA ?x Bird", "$ref" arguments)
	// or, when they contain parentheses, nested terms.
	Learn []string `yaml:"learn" json:"learn"`
}

// GraphSpec is a graph definition with its body as statement lines.
type GraphSpec struct {
	Name   string   `yaml:"name" json:"name"`
	Params []string `yaml:"params" json:"params"`
	Body   []string `yaml:"body" json:"body"`
	Return string   `yaml:"return" json:"return"`
}

// Def parses the body lines into a graph definition.
func (g GraphSpec) Def() (ir.GraphDef, error) {
	def := ir.GraphDef{Name: g.Name, Params: g.Params, Return: g.Return}
	for i, line := range g.Body {
		st, err := ir.ParseStatement(line)
		if err != nil {
			return ir.GraphDef{}, errors.Wrapf(err, "body[%d]", i)
		}
		def.Body = append(def.Body, st)
	}
	return def, nil
}

// LoadTheory reads a theory file. CUE (.cue) and YAML (.yaml, .yml) files
// carry graphs and learn lists; any other file is one line per statement,
// skipping blank lines and lines starting with #.
func LoadTheory(path string) (*Theory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read theory")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		return CompileTheory(v)
	case ".yaml", ".yml":
		var t Theory
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		return &t, nil
	}

	t := &Theory{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t.Learn = append(t.Learn, line)
	}
	return t, errors.Wrapf(sc.Err(), "read %s", path)
}

// CompileTheory reads a theory from a CUE value of the form
//
//	graph: trade: {
//		params: ["seller", "buyer", "item"]
//		body: ["@give give $seller $item", "@both exchange $give $buyer"]
//		return: "both"
//	}
//	learn: ["trade Erin Frank Boat"]
//
// Graphs keep their declaration order.
func CompileTheory(v cue.Value) (*Theory, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Theory{}
	if graphs := v.LookupPath(cue.ParsePath("graph")); graphs.Exists() {
		iter, err := graphs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			g, err := compileGraph(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Graphs = append(t.Graphs, g)
		}
	}

	lines, err := stringList(v.LookupPath(cue.ParsePath("learn")), "learn")
	if err != nil {
		return nil, err
	}
	t.Learn = lines
	return t, nil
}

func compileGraph(name string, v cue.Value) (GraphSpec, error) {
	g := GraphSpec{Name: name}
	var err error
	if g.Params, err = stringList(v.LookupPath(cue.ParsePath("params")), name+".params"); err != nil {
		return GraphSpec{}, err
	}
	if g.Body, err = stringList(v.LookupPath(cue.ParsePath("body")), name+".body"); err != nil {
		return GraphSpec{}, err
	}

	ret := v.LookupPath(cue.ParsePath("return"))
	if !ret.Exists() {
		return GraphSpec{}, &CompileError{
			Field:   name + ".return",
			Message: "return is required",
			Pos:     v.Pos(),
		}
	}
	if g.Return, err = ret.String(); err != nil {
		return GraphSpec{}, formatCUEError(err)
	}
	return g, nil
}

// stringList decodes an optional list of strings.
func stringList(v cue.Value, field string) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if v.IncompleteKind() != cue.ListKind {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected a list of strings, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
