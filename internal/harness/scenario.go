package harness

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hyperlore/internal/compiler"
	"github.com/roach88/hyperlore/internal/config"
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// Scenario is one YAML test file.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Strategies to run under; empty means all.
	Strategies []string `yaml:"strategies,omitempty"`

	Config *Overrides `yaml:"config,omitempty"`

	// Graphs are defined before the learn lines.
	compiler.Theory `yaml:",inline"`

	Steps []Step `yaml:"steps"`
}

// Overrides adjusts the default session config.
type Overrides struct {
	ClosedWorld      bool   `yaml:"closed_world,omitempty"`
	MaxProofDepth    int    `yaml:"max_proof_depth,omitempty"`
	ProofSteps       int    `yaml:"proof_steps,omitempty"`
	ConfidencePolicy string `yaml:"confidence_policy,omitempty"`
}

// Step runs exactly one of learn, query, find_all or prove.
type Step struct {
	Learn   string `yaml:"learn,omitempty"`
	Query   string `yaml:"query,omitempty"`
	FindAll string `yaml:"find_all,omitempty"`
	Prove   string `yaml:"prove,omitempty"`

	// Golden adds the step's output to the transcript (find_all, prove).
	Golden bool `yaml:"golden,omitempty"`

	// Strategies limits the step to some of the scenario's strategies;
	// empty means all of them.
	Strategies []string `yaml:"strategies,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the checked properties of a step. Unset fields are not
// checked.
type Expect struct {
	// query
	Outcome       string   `yaml:"outcome,omitempty"`
	MinConfidence *float64 `yaml:"min_confidence,omitempty"`

	// query and prove: the best answer
	Bindings map[string]string `yaml:"bindings,omitempty"`

	// find_all and prove: every answer, in order
	Answers []map[string]string `yaml:"answers,omitempty"`
	Count   *int                `yaml:"count,omitempty"`

	// prove
	Valid  *bool  `yaml:"valid,omitempty"`
	Status string `yaml:"status,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// learn: a LearnError code
	Error     string `yaml:"error,omitempty"`
	Duplicate bool   `yaml:"duplicate,omitempty"`
}

// Step kinds.
const (
	KindLearn   = "learn"
	KindQuery   = "query"
	KindFindAll = "find_all"
	KindProve   = "prove"
)

// Kind names the step's operation.
func (s Step) Kind() string {
	switch {
	case s.Learn != "":
		return KindLearn
	case s.Query != "":
		return KindQuery
	case s.FindAll != "":
		return KindFindAll
	default:
		return KindProve
	}
}

// RunsUnder reports whether the step applies to strategy id.
func (s Step) RunsUnder(id hdc.StrategyID) bool {
	if len(s.Strategies) == 0 {
		return true
	}
	for _, name := range s.Strategies {
		if parsed, err := hdc.ParseStrategyID(name); err == nil && parsed == id {
			return true
		}
	}
	return false
}

// Input is the step's statement, pattern or goal.
func (s Step) Input() string {
	return s.Learn + s.Query + s.FindAll + s.Prove
}

// LoadScenario reads a scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}
	if err := validateScenario(&sc); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &sc, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario directory")
	}
	var out []*Scenario
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		sc, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s", e.Name())
		}
		out = append(out, sc)
	}
	slices.SortFunc(out, func(a, b *Scenario) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	for _, id := range s.Strategies {
		if _, err := hdc.ParseStrategyID(id); err != nil {
			return err
		}
	}
	if _, err := s.config(); err != nil {
		return err
	}
	if errs := compiler.ValidateTheory(&s.Theory); len(errs) > 0 {
		return errs[0]
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return errors.Wrapf(err, "steps[%d]", i)
		}
	}
	return nil
}

func validateStep(s Step) error {
	set := 0
	for _, v := range []string{s.Learn, s.Query, s.FindAll, s.Prove} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of learn, query, find_all, prove is required")
	}
	if s.Golden && (s.Learn != "" || s.Query != "") {
		return errors.Newf("golden is only supported for find_all and prove")
	}
	if s.Golden && len(s.Strategies) > 0 {
		return errors.Newf("golden steps run under every strategy")
	}
	for _, id := range s.Strategies {
		if _, err := hdc.ParseStrategyID(id); err != nil {
			return err
		}
	}
	switch {
	case s.Query != "":
		p, err := ir.ParsePattern(s.Query)
		if err != nil {
			return err
		}
		return p.Validate()
	case s.FindAll != "":
		p, err := ir.ParsePattern(s.FindAll)
		if err != nil {
			return err
		}
		return p.Validate()
	case s.Prove != "":
		_, err := ir.ParseTerm(s.Prove)
		return err
	}
	return nil
}

// StrategyIDs returns the strategies to run under.
func (s *Scenario) StrategyIDs() []hdc.StrategyID {
	if len(s.Strategies) == 0 {
		return slices.Clone(hdc.Strategies)
	}
	out := make([]hdc.StrategyID, len(s.Strategies))
	for i, name := range s.Strategies {
		out[i], _ = hdc.ParseStrategyID(name)
	}
	return out
}

// config returns the default config with the scenario's overrides.
func (s *Scenario) config() (config.Config, error) {
	cfg := config.Default()
	if o := s.Config; o != nil {
		cfg.ClosedWorld = o.ClosedWorld
		if o.MaxProofDepth != 0 {
			cfg.MaxProofDepth = o.MaxProofDepth
		}
		if o.ProofSteps != 0 {
			cfg.ProofSteps = o.ProofSteps
		}
		if o.ConfidencePolicy != "" {
			cfg.ConfidencePolicy = o.ConfidencePolicy
		}
	}
	return cfg, cfg.Validate()
}
