package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a rule set from a YAML (or JSON, which YAML subsumes)
// file, validates it, and returns it priority-sorted. The file may be a
// `rules:` document or a bare top-level list.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a rule set document.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		// Bare list without the rules: wrapper
		var bare []Rule
		if listErr := yaml.Unmarshal(data, &bare); listErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		rs.Rules = bare
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}
