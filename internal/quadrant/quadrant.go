package quadrant

import (
	"fmt"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
)

// Band places a score relative to its calibrated low/high split.
type Band string

const (
	BandHigh     Band = "high"
	BandModerate Band = "moderate"
	BandLow      Band = "low"
	BandUnknown  Band = "unknown"
)

// Quadrant is the categorical risk outcome.
type Quadrant string

const (
	FranchiseCornerstone Quadrant = "franchise_cornerstone" // high performance, low dependence
	LuxuryComponent      Quadrant = "luxury_component"      // high performance, high dependence
	DepthPiece           Quadrant = "depth_piece"           // low performance, low dependence
	Avoid                Quadrant = "avoid"                 // low performance, high dependence
	Moderate             Quadrant = "moderate"
	DependenceUnknown    Quadrant = "dependence_unknown"
)

// All lists every quadrant Categorize can return.
func All() []Quadrant {
	return []Quadrant{FranchiseCornerstone, LuxuryComponent, DepthPiece, Avoid, Moderate, DependenceUnknown}
}

// Splits are the calibrated band boundaries.
type Splits struct {
	PerformanceLow  float64 `json:"performance_low"`
	PerformanceHigh float64 `json:"performance_high"`
	DependenceLow   float64 `json:"dependence_low"`
	DependenceHigh  float64 `json:"dependence_high"`
}

// SplitsFrom reads the four split thresholds from tbl.
func SplitsFrom(tbl *calibration.Table) (Splits, error) {
	var s Splits
	fields := []struct {
		name string
		dst  *float64
	}{
		{calibration.PerformanceLow, &s.PerformanceLow},
		{calibration.PerformanceHigh, &s.PerformanceHigh},
		{calibration.DependenceLow, &s.DependenceLow},
		{calibration.DependenceHigh, &s.DependenceHigh},
	}
	for _, f := range fields {
		v, ok := tbl.Get(f.name)
		if !ok {
			return Splits{}, fmt.Errorf("threshold table has no %s", f.name)
		}
		*f.dst = v
	}
	if s.PerformanceLow > s.PerformanceHigh || s.DependenceLow > s.DependenceHigh {
		return Splits{}, fmt.Errorf("quadrant splits are inverted: %+v", s)
	}
	return s, nil
}

// Result is the categorised outcome.
type Result struct {
	PerformanceScore float64  `json:"performance_score"`
	PerformanceBand  Band     `json:"performance_band"`
	DependenceScore  *float64 `json:"dependence_score"`
	DependenceBand   Band     `json:"dependence_band"`
	Quadrant         Quadrant `json:"quadrant"`
	// LeaningTo names the nearest corner quadrant when Quadrant is moderate.
	LeaningTo Quadrant `json:"leaning_to,omitempty"`
	Label     string   `json:"label"`
}

func band(x, low, high float64) Band {
	switch {
	case x >= high:
		return BandHigh
	case x <= low:
		return BandLow
	default:
		return BandModerate
	}
}

// lean resolves a moderate band to the nearer side of its midpoint.
func lean(b Band, x, low, high float64) Band {
	if b != BandModerate {
		return b
	}
	if x >= (low+high)/2 {
		return BandHigh
	}
	return BandLow
}

func corner(perf, dep Band) Quadrant {
	switch {
	case perf == BandHigh && dep == BandLow:
		return FranchiseCornerstone
	case perf == BandHigh && dep == BandHigh:
		return LuxuryComponent
	case perf == BandLow && dep == BandLow:
		return DepthPiece
	default:
		return Avoid
	}
}

// Categorize crosses the gated performance score with the dependence score.
// An undefined dependence score yields a performance-only label.
func Categorize(performance float64, dep dependence.Score, s Splits) Result {
	r := Result{
		PerformanceScore: performance,
		PerformanceBand:  band(performance, s.PerformanceLow, s.PerformanceHigh),
		DependenceBand:   BandUnknown,
	}

	if !dep.Defined {
		r.Quadrant = DependenceUnknown
		r.Label = fmt.Sprintf("%s performance, dependence unknown", r.PerformanceBand)
		return r
	}

	v := dep.Value
	r.DependenceScore = &v
	r.DependenceBand = band(v, s.DependenceLow, s.DependenceHigh)

	r.Label = fmt.Sprintf("%s performance, %s dependence", r.PerformanceBand, r.DependenceBand)
	if r.PerformanceBand != BandModerate && r.DependenceBand != BandModerate {
		r.Quadrant = corner(r.PerformanceBand, r.DependenceBand)
		return r
	}
	r.Quadrant = Moderate
	r.LeaningTo = corner(
		lean(r.PerformanceBand, performance, s.PerformanceLow, s.PerformanceHigh),
		lean(r.DependenceBand, v, s.DependenceLow, s.DependenceHigh),
	)
	r.Label += fmt.Sprintf(", leaning %s", r.LeaningTo)
	return r
}
