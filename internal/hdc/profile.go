package hdc

import "fmt"

// Band classifies a similarity or confidence score.
type Band string

const (
	BandStrong Band = "strong"
	BandGood   Band = "good"
	BandWeak   Band = "weak"
	BandFailed Band = "failed"
)

// Profile holds the strategy-relative thresholds. Scores are compared
// against these, never against universal constants.
type Profile struct {
	// Baseline is the expected similarity of two unrelated vectors.
	Baseline float64 `json:"baseline" yaml:"baseline"`

	Strong float64 `json:"strong" yaml:"strong"`
	Good   float64 `json:"good" yaml:"good"`
	Weak   float64 `json:"weak" yaml:"weak"`

	// Floor is the minimum similarity a decoded atom needs to enter a
	// query shortlist.
	Floor float64 `json:"floor" yaml:"floor"`
}

// Band classifies score against the profile.
func (p Profile) Band(score float64) Band {
	switch {
	case score >= p.Strong:
		return BandStrong
	case score >= p.Good:
		return BandGood
	case score >= p.Weak:
		return BandWeak
	default:
		return BandFailed
	}
}

// Accepts reports whether score clears the weakest passing band.
func (p Profile) Accepts(score float64) bool {
	return p.Band(score) != BandFailed
}

// Validate checks band ordering.
func (p Profile) Validate() error {
	if !(p.Strong <= 1 && p.Good <= p.Strong && p.Weak <= p.Good && p.Baseline <= p.Weak) {
		return &ConfigError{Field: "thresholds", Value: p.String(),
			Reason: "bands must satisfy baseline <= weak <= good <= strong <= 1"}
	}
	if p.Floor < 0 || p.Floor > p.Strong {
		return &ConfigError{Field: "thresholds.floor", Value: p.String(),
			Reason: "floor must lie in [0, strong]"}
	}
	return nil
}

func (p Profile) String() string {
	return fmt.Sprintf("baseline=%.3f weak=%.3f good=%.3f strong=%.3f floor=%.3f",
		p.Baseline, p.Weak, p.Good, p.Strong, p.Floor)
}

// DefaultProfile returns the built-in bands for a strategy.
func DefaultProfile(id StrategyID) Profile {
	switch id {
	case Dense:
		return Profile{Baseline: 0.5, Strong: 0.80, Good: 0.65, Weak: 0.55, Floor: 0.52}
	case Metric:
		return Profile{Baseline: 2.0 / 3.0, Strong: 0.90, Good: 0.80, Weak: 0.72, Floor: 0.68}
	default:
		return Profile{Baseline: 0, Strong: 0.60, Good: 0.35, Weak: 0.15, Floor: 0.01}
	}
}
