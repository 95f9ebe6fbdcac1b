package harness

import (
	"github.com/roach88/hyperlore/internal/hdc"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int    `json:"step"`
	Kind   string `json:"kind"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Result is the outcome of one scenario under one strategy.
type Result struct {
	Scenario string         `json:"scenario"`
	Strategy hdc.StrategyID `json:"strategy"`

	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Transcript is the text compared against the golden file.
	Transcript string `json:"-"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(scenario string, id hdc.StrategyID) *Result {
	return &Result{
		Scenario: scenario,
		Strategy: id,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(step int, kind, input, output string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Kind: kind, Input: input, Output: output})
}
