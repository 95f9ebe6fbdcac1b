package query

import (
	"github.com/roach88/hyperlore/internal/hdc"
)

// Outcome summarises a Query. Low confidence is an outcome, not an error.
type Outcome string

const (
	OutcomeMatch          Outcome = "match"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeAmbiguous      Outcome = "ambiguous"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// Confidence penalties.
const (
	// HolePenalty is taken once per hole beyond the first.
	HolePenalty = 0.10

	// AmbiguityPenalty applies when the runner-up answer is within
	// AmbiguityMargin of the best.
	AmbiguityPenalty = 0.15
	AmbiguityMargin  = 0.05
)

// Binding is the answer for one hole.
type Binding struct {
	Value        string      `json:"value"`
	Similarity   float64     `json:"similarity"`
	Alternatives []hdc.Match `json:"alternatives,omitempty"`
}

// Result is the answer to a Query.
type Result struct {
	Success    bool               `json:"success"`
	Outcome    Outcome            `json:"outcome"`
	Band       hdc.Band           `json:"band"`
	Confidence float64            `json:"confidence"`
	Bindings   map[string]Binding `json:"bindings"`

	// Support is the sequence number of the fact that validated the
	// answer, 0 when nothing did.
	Support int64 `json:"support,omitempty"`
}

// Values flattens Bindings to hole -> value.
func (r *Result) Values() Bindings {
	out := make(Bindings, len(r.Bindings))
	for k, b := range r.Bindings {
		out[k] = b.Value
	}
	return out
}

// Bindings maps hole names to values.
type Bindings map[string]string

func noMatch() *Result {
	return &Result{Outcome: OutcomeNoMatch, Band: hdc.BandFailed, Bindings: map[string]Binding{}}
}
