// Package schema loads the declared column schema for a pipeline run.
package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Spec declares the required column names and the target column for a run.
// It is loaded once and never mutated. The target column is always a member
// of the required set; Load enforces this.
type Spec struct {
	Columns      []string `yaml:"columns"`
	TargetColumn string   `yaml:"target_column"`
}

// Load reads a schema spec from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a schema spec document.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema declares no columns")
	}
	if s.TargetColumn == "" {
		return nil, fmt.Errorf("schema declares no target_column")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c == "" {
			return nil, fmt.Errorf("schema contains an empty column name")
		}
		if seen[c] {
			return nil, fmt.Errorf("schema declares column %q twice", c)
		}
		seen[c] = true
	}
	if !seen[s.TargetColumn] {
		return nil, fmt.Errorf("target_column %q is not in the declared columns", s.TargetColumn)
	}
	return &s, nil
}

// Missing returns the required columns absent from actual, sorted. Extra
// columns in actual are tolerated; the check is subset, not equality.
func (s *Spec) Missing(actual []string) []string {
	have := make(map[string]bool, len(actual))
	for _, c := range actual {
		have[c] = true
	}
	var missing []string
	for _, c := range s.Columns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}
