package gates

import (
	"fmt"

	"usage-projection/internal/calibration"
	"usage-projection/internal/features"
)

// Config holds the fixed ceilings and switches of the default hierarchy.
// Dynamic thresholds are not configured here; they come from the
// calibrated table.
type Config struct {
	DataCeiling         float64 `yaml:"data_ceiling"`
	CatastrophicCeiling float64 `yaml:"catastrophic_ceiling"`
	CompoundCeiling     float64 `yaml:"compound_ceiling"`
	DependenceCeiling   float64 `yaml:"dependence_ceiling"`

	// HighUsage is the usage level at which volume-conditioned gates engage.
	HighUsage float64 `yaml:"high_usage"`

	// MinCoverage is the share of CriticalFeatures that must be present.
	MinCoverage           float64  `yaml:"min_coverage"`
	CriticalFeatures      []string `yaml:"critical_features"`
	SufficiencyPredicates []string `yaml:"sufficiency_predicates"`

	MinCompoundSignals int `yaml:"min_compound_signals"`

	DisabledGates      []string `yaml:"disabled_gates,omitempty"`
	DisabledExemptions []string `yaml:"disabled_exemptions,omitempty"`
}

// DefaultConfig returns the stock gate configuration.
func DefaultConfig() Config {
	return Config{
		DataCeiling:         0.30,
		CatastrophicCeiling: 0.30,
		CompoundCeiling:     0.50,
		DependenceCeiling:   0.45,
		HighUsage:           0.25,
		MinCoverage:         0.75,
		CriticalFeatures: features.Keys([]features.Name{
			features.TSPct,
			features.FTRate,
			features.RimAppetite,
			features.CreationTax,
			features.ShotQualityDelta,
			features.ClutchTSDelta,
			features.PressureResilience,
			features.TOVPct,
		}),
		SufficiencyPredicates: []string{calibration.PredicateShooting, calibration.PredicateRotation},
		MinCompoundSignals:    2,
	}
}

// Validate checks ranges and references.
func (c Config) Validate(preds calibration.Predicates) error {
	ceilings := map[string]float64{
		"data_ceiling":         c.DataCeiling,
		"catastrophic_ceiling": c.CatastrophicCeiling,
		"compound_ceiling":     c.CompoundCeiling,
		"dependence_ceiling":   c.DependenceCeiling,
		"min_coverage":         c.MinCoverage,
	}
	for name, v := range ceilings {
		if v < 0 || v > 1 {
			return fmt.Errorf("gate config %s=%v outside [0,1]", name, v)
		}
	}
	if c.HighUsage <= 0 || c.HighUsage > 1 {
		return fmt.Errorf("gate config high_usage=%v outside (0,1]", c.HighUsage)
	}
	if c.MinCompoundSignals < 2 {
		return fmt.Errorf("gate config min_compound_signals=%d: compound gates need at least two signals", c.MinCompoundSignals)
	}
	for _, key := range c.CriticalFeatures {
		if _, ok := features.Lookup(key); !ok {
			return fmt.Errorf("gate config references unknown critical feature %q", key)
		}
	}
	for _, p := range c.SufficiencyPredicates {
		if _, ok := preds[p]; !ok {
			return fmt.Errorf("gate config references unknown predicate %q", p)
		}
	}
	return nil
}

func (c Config) criticalNames() []features.Name {
	out := make([]features.Name, 0, len(c.CriticalFeatures))
	for _, key := range c.CriticalFeatures {
		if n, ok := features.Lookup(key); ok {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
