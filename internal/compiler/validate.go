package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/hyperlore/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Graph errors (E201-E209)
	ErrGraphName   = "E201" // empty or duplicate graph name
	ErrGraphParams = "E202" // empty or duplicate parameter
	ErrGraphBody   = "E203" // body line does not parse
	ErrGraphReturn = "E204" // return names nothing the graph binds
	ErrGraphCycle  = "E205" // graph expansion cycle

	// Learn errors (E210-E219)
	ErrLearnMalformed = "E210" // learn line does not parse
)

// ValidationError represents a theory validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateTheory checks a theory before anything is learned from it.
// Returns all errors found (does not fail-fast).
//
// Only what is decidable from the file alone is checked. References
// resolve against the session scope and are left to learning.
func ValidateTheory(t *Theory) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool, len(t.Graphs))
	for i, g := range t.Graphs {
		field := fmt.Sprintf("graphs[%d]", i)
		switch {
		case strings.TrimSpace(g.Name) == "":
			errs = append(errs, ValidationError{Field: field + ".name", Message: "graph name is required", Code: ErrGraphName})
		case names[g.Name]:
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate graph name: %q", g.Name), Code: ErrGraphName})
		}
		names[g.Name] = true
		errs = append(errs, validateGraph(field, g)...)
	}

	for _, c := range AnalyzeGraphs(t.Graphs) {
		errs = append(errs, ValidationError{Field: "graphs", Message: c.Message, Code: ErrGraphCycle})
	}

	for i, line := range t.Learn {
		if err := parseLine(line); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("learn[%d]", i),
				Message: err.Error(),
				Code:    ErrLearnMalformed,
				Line:    i + 1,
			})
		}
	}
	return errs
}

func validateGraph(field string, g GraphSpec) []ValidationError {
	var errs []ValidationError
	bound := make(map[string]bool, len(g.Params)+len(g.Body))
	for j, p := range g.Params {
		if p == "" || bound[p] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.params[%d]", field, j),
				Message: fmt.Sprintf("empty or duplicate parameter %q", p),
				Code:    ErrGraphParams,
			})
		}
		bound[p] = true
	}

	for j, line := range g.Body {
		bodyField := fmt.Sprintf("%s.body[%d]", field, j)
		st, err := ir.ParseStatement(line)
		if err != nil {
			errs = append(errs, ValidationError{Field: bodyField, Message: err.Error(), Code: ErrGraphBody})
			continue
		}
		if st.Destination != "" {
			bound[st.Destination] = true
		}
	}

	switch {
	case g.Return == "":
		errs = append(errs, ValidationError{Field: field + ".return", Message: "return is required", Code: ErrGraphReturn})
	case !bound[g.Return]:
		errs = append(errs, ValidationError{
			Field:   field + ".return",
			Message: fmt.Sprintf("%q is not a parameter or a body destination", g.Return),
			Code:    ErrGraphReturn,
		})
	}
	return errs
}

// parseLine parses a learn line the way a session does: nested terms when
// it has parentheses, statements otherwise.
func parseLine(line string) error {
	if strings.Contains(line, "(") {
		_, err := ir.ParseTerm(line)
		return err
	}
	_, err := ir.ParseStatement(line)
	return err
}
