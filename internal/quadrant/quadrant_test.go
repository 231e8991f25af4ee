package quadrant

import (
	"testing"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
)

var testSplits = Splits{
	PerformanceLow:  0.20,
	PerformanceHigh: 0.45,
	DependenceLow:   0.40,
	DependenceHigh:  0.60,
}

func defined(v float64) dependence.Score {
	return dependence.Score{Value: v, Defined: true, Coverage: dependence.CoverageFull}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		perf float64
		dep  dependence.Score
		want Quadrant
	}{
		{"HighPerfHighDependence", 0.80, defined(0.70), LuxuryComponent},
		{"HighPerfLowDependence", 0.80, defined(0.30), FranchiseCornerstone},
		{"LowPerfLowDependence", 0.10, defined(0.30), DepthPiece},
		{"LowPerfHighDependence", 0.10, defined(0.70), Avoid},
		{"ModeratePerformance", 0.30, defined(0.70), Moderate},
		{"ModerateDependence", 0.80, defined(0.50), Moderate},
		{"PerfOnHighBoundary", 0.45, defined(0.30), FranchiseCornerstone},
		{"DependenceOnLowBoundary", 0.10, defined(0.40), DepthPiece},
		{"UnknownDependence", 0.80, dependence.Score{Coverage: dependence.CoverageNone}, DependenceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Categorize(tt.perf, tt.dep, testSplits)
			if r.Quadrant != tt.want {
				t.Errorf("Categorize(%v, %v) = %s, want %s", tt.perf, tt.dep.Value, r.Quadrant, tt.want)
			}
			if r.Label == "" {
				t.Error("label must always be produced")
			}
		})
	}
}

func TestCategorize_LeaningTo(t *testing.T) {
	tests := []struct {
		name string
		perf float64
		dep  float64
		want Quadrant
	}{
		{"HighPerfUpperModerateDependence", 0.80, 0.55, LuxuryComponent},
		{"HighPerfLowerModerateDependence", 0.80, 0.45, FranchiseCornerstone},
		{"UpperModeratePerfLowDependence", 0.40, 0.30, FranchiseCornerstone},
		{"LowerModeratePerfHighDependence", 0.25, 0.70, Avoid},
		{"BothModerateLow", 0.25, 0.42, DepthPiece},
		{"DependenceMidpointLeansHigh", 0.80, 0.50, LuxuryComponent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Categorize(tt.perf, defined(tt.dep), testSplits)
			if r.Quadrant != Moderate {
				t.Fatalf("quadrant = %s, want moderate", r.Quadrant)
			}
			if r.LeaningTo != tt.want {
				t.Errorf("leaning = %s, want %s", r.LeaningTo, tt.want)
			}
		})
	}

	if r := Categorize(0.80, defined(0.70), testSplits); r.LeaningTo != "" {
		t.Errorf("corner quadrants carry no leaning, got %s", r.LeaningTo)
	}
	if r := Categorize(0.30, dependence.Score{}, testSplits); r.LeaningTo != "" {
		t.Errorf("unknown dependence carries no leaning, got %s", r.LeaningTo)
	}
}

func TestCategorize_UnknownDependenceKeepsPerformance(t *testing.T) {
	r := Categorize(0.80, dependence.Score{}, testSplits)
	if r.PerformanceBand != BandHigh {
		t.Errorf("performance band = %s, want high", r.PerformanceBand)
	}
	if r.DependenceScore != nil || r.DependenceBand != BandUnknown {
		t.Errorf("dependence should be unknown, got %v / %s", r.DependenceScore, r.DependenceBand)
	}
	if r.Label != "high performance, dependence unknown" {
		t.Errorf("label = %q", r.Label)
	}
}

func TestCategorize_Totality(t *testing.T) {
	valid := make(map[Quadrant]bool)
	for _, q := range All() {
		valid[q] = true
	}
	for i := 0; i <= 100; i++ {
		for j := 0; j <= 100; j++ {
			perf, dep := float64(i)/100, float64(j)/100
			r := Categorize(perf, defined(dep), testSplits)
			if !valid[r.Quadrant] || r.Label == "" {
				t.Fatalf("Categorize(%v, %v) returned %q / %q", perf, dep, r.Quadrant, r.Label)
			}
		}
	}
}

func TestSplitsFrom(t *testing.T) {
	tbl, err := calibration.NewTable(map[string]float64{
		calibration.PerformanceLow:  0.2,
		calibration.PerformanceHigh: 0.45,
		calibration.DependenceLow:   0.4,
		calibration.DependenceHigh:  0.6,
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	s, err := SplitsFrom(tbl)
	if err != nil {
		t.Fatalf("SplitsFrom: %v", err)
	}
	if s != testSplits {
		t.Errorf("SplitsFrom() = %+v, want %+v", s, testSplits)
	}

	partial, _ := calibration.NewTable(map[string]float64{calibration.PerformanceLow: 0.2})
	if _, err := SplitsFrom(partial); err == nil {
		t.Error("missing splits should fail")
	}
}
