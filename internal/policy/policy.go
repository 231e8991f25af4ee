// Package policy loads the tunable risk policy: minimum-sample predicates,
// threshold calibration specs, gate ceilings and exemptions, and the
// dependence fallback chain.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
	"usage-projection/internal/gates"
)

// Policy is the full set of tunables. Values absent from a policy file keep
// their defaults; a thresholds list in the file replaces the default list.
type Policy struct {
	Predicates calibration.Predicates      `yaml:"predicates"`
	Thresholds []calibration.ThresholdSpec `yaml:"thresholds"`
	Gates      gates.Config                `yaml:"gates"`
	Dependence dependence.Config           `yaml:"dependence"`
}

// Default returns the stock policy.
func Default() *Policy {
	return &Policy{
		Predicates: calibration.DefaultPredicates(),
		Thresholds: calibration.DefaultSpecs(),
		Gates:      gates.DefaultConfig(),
		Dependence: dependence.DefaultConfig(),
	}
}

// Load reads a policy file over the defaults. An empty path yields the
// defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return p, nil
}

// quadrantSplits must always be calibrated.
var quadrantSplits = []string{
	calibration.PerformanceLow,
	calibration.PerformanceHigh,
	calibration.DependenceLow,
	calibration.DependenceHigh,
}

// Validate checks every section and their cross references.
func (p *Policy) Validate() error {
	if err := p.Predicates.Validate(); err != nil {
		return err
	}
	if err := calibration.ValidateSpecs(p.Thresholds, p.Predicates); err != nil {
		return err
	}
	names := make(map[string]bool, len(p.Thresholds))
	for _, s := range p.Thresholds {
		names[s.Name] = true
	}
	for _, n := range quadrantSplits {
		if !names[n] {
			return fmt.Errorf("policy must calibrate %s", n)
		}
	}
	if err := p.Gates.Validate(p.Predicates); err != nil {
		return err
	}
	return p.Dependence.Validate()
}

// Marshal renders the policy as YAML.
func (p *Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Save writes the policy as YAML.
func (p *Policy) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}
