package proof

import (
	"github.com/roach88/hyperlore/internal/hdc"
)

// Method is how a node was established.
type Method string

const (
	MethodDirect     Method = "direct"
	MethodRule       Method = "rule"
	MethodTransitive Method = "transitive"
	MethodSymmetric  Method = "symmetric"
	MethodReflexive  Method = "reflexive"
	MethodNegation   Method = "negation"
	MethodCompound   Method = "compound"

	// MethodNone marks a goal no method established.
	MethodNone Method = "none"
)

// Status is the verdict on a node.
type Status string

const (
	StatusValid      Status = "valid"
	StatusInvalid    Status = "invalid"
	StatusUnresolved Status = "unresolved"
)

// Reason explains a node that is not valid.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTimeout          Reason = "timeout"
	ReasonExplicitNegation Reason = "explicit_negation"
	ReasonDepthLimit       Reason = "depth_limit"
	ReasonCycle            Reason = "cycle"
	ReasonNoEvidence       Reason = "no_evidence"

	// ReasonRefuted marks a Not whose inner goal was proved.
	ReasonRefuted Reason = "refuted"
)

// rank orders reasons when alternatives fail differently; the highest wins.
func (r Reason) rank() int {
	switch r {
	case ReasonTimeout:
		return 6
	case ReasonExplicitNegation:
		return 5
	case ReasonRefuted:
		return 4
	case ReasonDepthLimit:
		return 3
	case ReasonCycle:
		return 2
	case ReasonNoEvidence:
		return 1
	}
	return 0
}

// Status is the node status a failure with this reason carries. Search
// limits leave a goal unresolved; evidence against it makes it invalid.
func (r Reason) Status() Status {
	switch r {
	case ReasonTimeout, ReasonDepthLimit, ReasonCycle:
		return StatusUnresolved
	case ReasonNone:
		return StatusValid
	}
	return StatusInvalid
}

func worst(a, b Reason) Reason {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Policy combines premise confidences.
type Policy string

const (
	PolicyMin     Policy = "min"
	PolicyProduct Policy = "product"
)

// ParsePolicy validates a policy name. Empty selects min.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyMin:
		return PolicyMin, nil
	case PolicyProduct:
		return PolicyProduct, nil
	}
	return "", &hdc.ConfigError{Field: "confidence_policy", Value: s, Reason: "must be min or product"}
}

// Combine folds premise confidences. No premises is certainty.
func (p Policy) Combine(confs ...float64) float64 {
	if len(confs) == 0 {
		return 1
	}
	out := confs[0]
	for _, c := range confs[1:] {
		if p == PolicyProduct {
			out *= c
		} else {
			out = min(out, c)
		}
	}
	return out
}
