package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/roach88/hyperlore/internal/hdc"
)

// EnvPrefix prefixes environment overrides: LORE_STRATEGY, LORE_SIZE,
// LORE_CLOSED_WORLD, ...
const EnvPrefix = "LORE"

// Load reads a configuration file and validates it. CUE files are
// evaluated and their top-level engine struct decoded; any other extension
// is read by viper (YAML, TOML, JSON) with LORE_* environment overrides.
// An empty path yields the defaults with environment overrides.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		cfg, err = loadCUE(path)
	} else {
		cfg, err = loadViper(path)
	}
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", displayPath(path))
	}
	return cfg, nil
}

func displayPath(path string) string {
	if path == "" {
		return "(environment)"
	}
	return path
}

// SetDefaults registers every key with its default so environment
// overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("size", d.Size)
	v.SetDefault("max_proof_depth", d.MaxProofDepth)
	v.SetDefault("closed_world", d.ClosedWorld)
	v.SetDefault("proof_steps", d.ProofSteps)
	v.SetDefault("proof_timeout", d.ProofTimeout)
	v.SetDefault("confidence_policy", d.ConfidencePolicy)
	v.SetDefault("query_top_k", d.QueryTopK)
	v.SetDefault("fact_top_k", d.FactTopK)
}

func loadViper(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", displayPath(path))
	}
	return cfg, nil
}

// cueConfig mirrors Config with optional fields so absent keys keep their
// defaults.
type cueConfig struct {
	Strategy         *string                `json:"strategy"`
	Size             *int                   `json:"size"`
	Thresholds       map[string]hdc.Profile `json:"thresholds"`
	MaxProofDepth    *int                   `json:"max_proof_depth"`
	ClosedWorld      *bool                  `json:"closed_world"`
	ProofSteps       *int                   `json:"proof_steps"`
	ProofTimeout     *string                `json:"proof_timeout"`
	ConfidencePolicy *string                `json:"confidence_policy"`
	QueryTopK        *int                   `json:"query_top_k"`
	FactTopK         *int                   `json:"fact_top_k"`
}

func loadCUE(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return Config{}, errors.Wrapf(err, "compile %s", path)
	}

	cfg := Default()
	engine := value.LookupPath(cue.ParsePath("engine"))
	if !engine.Exists() {
		return cfg, nil
	}
	if err := engine.Validate(cue.Concrete(true)); err != nil {
		return Config{}, errors.Wrapf(err, "%s: engine", path)
	}

	var cc cueConfig
	if err := engine.Decode(&cc); err != nil {
		return Config{}, errors.Wrapf(err, "%s: decode engine", path)
	}
	return cc.apply(cfg)
}

func (cc cueConfig) apply(cfg Config) (Config, error) {
	if cc.Strategy != nil {
		cfg.Strategy = *cc.Strategy
	}
	if cc.Size != nil {
		cfg.Size = *cc.Size
	}
	if cc.Thresholds != nil {
		cfg.Thresholds = cc.Thresholds
	}
	if cc.MaxProofDepth != nil {
		cfg.MaxProofDepth = *cc.MaxProofDepth
	}
	if cc.ClosedWorld != nil {
		cfg.ClosedWorld = *cc.ClosedWorld
	}
	if cc.ProofSteps != nil {
		cfg.ProofSteps = *cc.ProofSteps
	}
	if cc.ProofTimeout != nil {
		d, err := time.ParseDuration(*cc.ProofTimeout)
		if err != nil {
			return Config{}, &hdc.ConfigError{Field: "proof_timeout", Value: *cc.ProofTimeout, Reason: "not a duration"}
		}
		cfg.ProofTimeout = d
	}
	if cc.ConfidencePolicy != nil {
		cfg.ConfidencePolicy = *cc.ConfidencePolicy
	}
	if cc.QueryTopK != nil {
		cfg.QueryTopK = *cc.QueryTopK
	}
	if cc.FactTopK != nil {
		cfg.FactTopK = *cc.FactTopK
	}
	return cfg, nil
}
