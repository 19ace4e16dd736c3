package aggregate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadScoringConfig reads scoring constants from a YAML file. Zero-valued
// weights and credits fall back to the defaults so a config file only needs
// to state what it overrides.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	def := DefaultScoringConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return def, eris.Wrapf(err, "aggregate: read scoring config %s", path)
	}

	// The YAML has a top-level "scoring" key.
	var wrapper struct {
		Scoring ScoringConfig `yaml:"scoring"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return def, eris.Wrap(err, "aggregate: parse scoring config")
	}

	cfg := wrapper.Scoring
	if cfg.CompletenessWeight == 0 {
		cfg.CompletenessWeight = def.CompletenessWeight
	}
	if cfg.ConfidenceWeight == 0 {
		cfg.ConfidenceWeight = def.ConfidenceWeight
	}
	if cfg.PriorityStep == 0 {
		cfg.PriorityStep = def.PriorityStep
	}
	if cfg.Credits == (CompletenessCredits{}) {
		cfg.Credits = def.Credits
	}
	if len(cfg.Priorities) == 0 {
		cfg.Priorities = def.Priorities
	}

	return cfg, nil
}
