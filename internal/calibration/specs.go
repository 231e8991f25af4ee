package calibration

import (
	"fmt"

	"usage-projection/internal/features"
)

// Threshold names. Gate and quadrant logic reference thresholds only
// through these names.
const (
	InefficiencyFloor     = "inefficiency_floor"
	RimPressureFloor      = "rim_pressure_floor"
	ShotQualityDeltaFloor = "shot_quality_delta_floor"
	CreationTaxFloor      = "creation_tax_floor"
	CreationTaxCollapse   = "creation_tax_collapse"
	TurnoverCeiling       = "turnover_ceiling"
	FTRateFloor           = "ft_rate_floor"
	FTRateElite           = "ft_rate_elite"
	EliteRimFG            = "elite_rim_fg"
	RimAppetiteElite      = "rim_appetite_elite"
	ClutchCollapse        = "clutch_collapse"
	PressureCollapse      = "pressure_collapse"
	DependenceLow         = "dependence_low"
	DependenceHigh        = "dependence_high"
	PerformanceLow        = "performance_low"
	PerformanceHigh       = "performance_high"
)

// Derived sources are columns computed from a row rather than read from it.
const (
	SourceDependenceScore = "dependence_score"
	SourceStarProbability = "star_probability"
)

// Deriver computes a derived column for one row. ok is false when the row
// cannot produce a value; such rows are excluded from the percentile.
type Deriver func(v features.Vector) (value float64, ok bool)

// BoundMode decides how a fixed bound combines with the percentile value.
type BoundMode string

const (
	AtLeast BoundMode = "at_least" // max(percentile, bound)
	AtMost  BoundMode = "at_most"  // min(percentile, bound)
)

// Bound is a fixed limit the calibrated value may not cross.
type Bound struct {
	Value float64   `yaml:"value" json:"value"`
	Mode  BoundMode `yaml:"mode" json:"mode"`
}

func (b Bound) apply(x float64) (float64, bool) {
	switch b.Mode {
	case AtLeast:
		if b.Value > x {
			return b.Value, true
		}
	case AtMost:
		if b.Value < x {
			return b.Value, true
		}
	}
	return x, false
}

// ThresholdSpec describes how one threshold is calibrated.
type ThresholdSpec struct {
	Name       string   `yaml:"name" json:"name"`
	Source     string   `yaml:"source" json:"source"`
	Percentile float64  `yaml:"percentile" json:"percentile"`
	Requires   []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Bound      *Bound   `yaml:"bound,omitempty" json:"bound,omitempty"`
}

// DefaultSpecs returns the stock calibration plan.
func DefaultSpecs() []ThresholdSpec {
	shooting := []string{PredicateShooting}
	return []ThresholdSpec{
		{Name: InefficiencyFloor, Source: features.TSPct.String(), Percentile: 25, Requires: shooting},
		{Name: RimPressureFloor, Source: features.RimAppetite.String(), Percentile: 30, Requires: shooting},
		{Name: ShotQualityDeltaFloor, Source: features.ShotQualityDelta.String(), Percentile: 20, Requires: shooting},
		{Name: CreationTaxFloor, Source: features.CreationTax.String(), Percentile: 25, Requires: shooting},
		{Name: CreationTaxCollapse, Source: features.CreationTax.String(), Percentile: 10, Requires: shooting,
			Bound: &Bound{Value: -0.08, Mode: AtMost}},
		{Name: TurnoverCeiling, Source: features.TOVPct.String(), Percentile: 75, Requires: []string{PredicateRotation}},
		{Name: FTRateFloor, Source: features.FTRate.String(), Percentile: 25, Requires: shooting},
		{Name: FTRateElite, Source: features.FTRate.String(), Percentile: 80, Requires: shooting},
		{Name: EliteRimFG, Source: features.RimFGPct.String(), Percentile: 75, Requires: []string{PredicateRim},
			Bound: &Bound{Value: 0.62, Mode: AtLeast}},
		{Name: RimAppetiteElite, Source: features.RimAppetite.String(), Percentile: 75, Requires: shooting},
		{Name: ClutchCollapse, Source: features.ClutchTSDelta.String(), Percentile: 10, Requires: []string{PredicateClutch},
			Bound: &Bound{Value: -0.06, Mode: AtMost}},
		{Name: PressureCollapse, Source: features.PressureResilience.String(), Percentile: 10, Requires: []string{PredicatePressure}},
		{Name: DependenceLow, Source: SourceDependenceScore, Percentile: 33, Requires: []string{PredicateRotation}},
		{Name: DependenceHigh, Source: SourceDependenceScore, Percentile: 67, Requires: []string{PredicateRotation}},
		{Name: PerformanceLow, Source: SourceStarProbability, Percentile: 50, Requires: []string{PredicateShooting, PredicateRotation}},
		{Name: PerformanceHigh, Source: SourceStarProbability, Percentile: 75, Requires: []string{PredicateShooting, PredicateRotation}},
	}
}

// ValidateSpecs checks names, sources, percentiles, bounds and predicate references.
func ValidateSpecs(specs []ThresholdSpec, preds Predicates) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("%w: threshold without a name", ErrInvalidSpec)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate threshold %q", ErrInvalidSpec, s.Name)
		}
		seen[s.Name] = true

		if _, ok := features.Lookup(s.Source); !ok && s.Source != SourceDependenceScore && s.Source != SourceStarProbability {
			return fmt.Errorf("%w: threshold %q has unknown source %q", ErrInvalidSpec, s.Name, s.Source)
		}
		if s.Percentile < 0 || s.Percentile > 100 {
			return fmt.Errorf("%w: threshold %q percentile %.1f outside [0,100]", ErrInvalidSpec, s.Name, s.Percentile)
		}
		if s.Bound != nil && s.Bound.Mode != AtLeast && s.Bound.Mode != AtMost {
			return fmt.Errorf("%w: threshold %q has bound mode %q", ErrInvalidSpec, s.Name, s.Bound.Mode)
		}
		for _, r := range s.Requires {
			if _, ok := preds[r]; !ok {
				return fmt.Errorf("%w: threshold %q requires unknown predicate %q", ErrInvalidSpec, s.Name, r)
			}
		}
	}
	return nil
}
