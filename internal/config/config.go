// Package config holds session configuration: which algebra, how large,
// the similarity bands, and the proof search limits.
package config

import (
	"strconv"
	"time"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

// Config configures one session.
type Config struct {
	Strategy string `mapstructure:"strategy" json:"strategy" yaml:"strategy"`

	// Size is the strategy's sizing parameter; 0 selects its default.
	Size int `mapstructure:"size" json:"size" yaml:"size"`

	// Thresholds overrides the similarity bands per strategy id.
	Thresholds map[string]hdc.Profile `mapstructure:"thresholds" json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	MaxProofDepth    int           `mapstructure:"max_proof_depth" json:"max_proof_depth" yaml:"max_proof_depth"`
	ClosedWorld      bool          `mapstructure:"closed_world" json:"closed_world" yaml:"closed_world"`
	ProofSteps       int           `mapstructure:"proof_steps" json:"proof_steps" yaml:"proof_steps"`
	ProofTimeout     time.Duration `mapstructure:"proof_timeout" json:"proof_timeout" yaml:"proof_timeout"`
	ConfidencePolicy string        `mapstructure:"confidence_policy" json:"confidence_policy" yaml:"confidence_policy"`

	QueryTopK int `mapstructure:"query_top_k" json:"query_top_k" yaml:"query_top_k"`
	FactTopK  int `mapstructure:"fact_top_k" json:"fact_top_k" yaml:"fact_top_k"`
}

// DefaultProofTimeout bounds a single Prove call.
const DefaultProofTimeout = 5 * time.Second

// Default returns the built-in configuration: dense vectors at their
// default size, open world, min confidence policy.
func Default() Config {
	return Config{
		Strategy:         string(hdc.Dense),
		MaxProofDepth:    proof.DefaultMaxDepth,
		ProofSteps:       proof.DefaultMaxSteps,
		ProofTimeout:     DefaultProofTimeout,
		ConfidencePolicy: string(proof.PolicyMin),
		QueryTopK:        query.DefaultTopK,
		FactTopK:         query.DefaultFactTopK,
	}
}

// Validate checks every field. Errors are *hdc.ConfigError.
func (c Config) Validate() error {
	id, err := hdc.ParseStrategyID(c.Strategy)
	if err != nil {
		return err
	}
	if c.Size < 0 {
		return &hdc.ConfigError{Field: "size", Value: strconv.Itoa(c.Size), Reason: "must not be negative"}
	}
	if _, err := hdc.New(id, c.Size); err != nil {
		return err
	}
	for name, p := range c.Thresholds {
		if _, err := hdc.ParseStrategyID(name); err != nil {
			return &hdc.ConfigError{Field: "thresholds", Value: name, Reason: "unknown strategy"}
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.MaxProofDepth < 1 {
		return &hdc.ConfigError{Field: "max_proof_depth", Value: strconv.Itoa(c.MaxProofDepth), Reason: "must be at least 1"}
	}
	if c.ProofSteps < 1 {
		return &hdc.ConfigError{Field: "proof_steps", Value: strconv.Itoa(c.ProofSteps), Reason: "must be at least 1"}
	}
	if c.ProofTimeout < 0 {
		return &hdc.ConfigError{Field: "proof_timeout", Value: c.ProofTimeout.String(), Reason: "must not be negative"}
	}
	if _, err := proof.ParsePolicy(c.ConfidencePolicy); err != nil {
		return err
	}
	if c.QueryTopK < 1 {
		return &hdc.ConfigError{Field: "query_top_k", Value: strconv.Itoa(c.QueryTopK), Reason: "must be at least 1"}
	}
	if c.FactTopK < 1 {
		return &hdc.ConfigError{Field: "fact_top_k", Value: strconv.Itoa(c.FactTopK), Reason: "must be at least 1"}
	}
	return nil
}

// StrategyID returns the configured strategy. Call Validate first.
func (c Config) StrategyID() hdc.StrategyID {
	id, _ := hdc.ParseStrategyID(c.Strategy)
	return id
}

// Profile returns the bands for the configured strategy, with overrides.
func (c Config) Profile() hdc.Profile {
	id := c.StrategyID()
	if p, ok := c.Thresholds[string(id)]; ok {
		return p
	}
	return hdc.DefaultProfile(id)
}

// Policy returns the confidence policy. Call Validate first.
func (c Config) Policy() proof.Policy {
	p, _ := proof.ParsePolicy(c.ConfidencePolicy)
	return p
}

// ProofOptions derives proof search options.
func (c Config) ProofOptions() proof.Options {
	return proof.Options{
		MaxDepth:    c.MaxProofDepth,
		MaxSteps:    c.ProofSteps,
		ClosedWorld: c.ClosedWorld,
		Policy:      c.Policy(),
		Threshold:   c.Profile().Strong,
	}
}

// QueryOptions derives query options.
func (c Config) QueryOptions() query.Options {
	return query.Options{
		TopK:     c.QueryTopK,
		FactTopK: c.FactTopK,
		Profile:  c.Profile(),
	}
}
