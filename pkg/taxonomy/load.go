// Copyright 2025 Certen Protocol
//
// Loads the country-to-universal-type mapping table from YAML, mirroring
// how pkg/reference loads its bounding-box and count tables: the mapping
// is data shipped alongside the binary, not a compiled-in switch statement.

package taxonomy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type rawRules struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses YAML bytes into a flat rule list suitable for NewMapping.
func LoadRules(data []byte) ([]Rule, error) {
	var raw rawRules
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("taxonomy: parse yaml: %w", err)
	}
	return raw.Rules, nil
}

// Load parses YAML bytes directly into a built Mapping.
func Load(data []byte) (*Mapping, error) {
	rules, err := LoadRules(data)
	if err != nil {
		return nil, err
	}
	return NewMapping(rules)
}

// LoadDefault builds a Mapping from the taxonomy table shipped inside the
// binary. Deployments with a larger or country-specific vocabulary should
// use Load with their own YAML bytes instead.
func LoadDefault() (*Mapping, error) {
	return Load(defaultRulesYAML)
}
