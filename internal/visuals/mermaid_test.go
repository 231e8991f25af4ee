package visuals

import (
	"strings"
	"testing"

	"usage-projection/internal/dependence"
	"usage-projection/internal/engine"
)

func TestGenerateUsageSweepChart(t *testing.T) {
	if got := GenerateUsageSweepChart(nil); got != "" {
		t.Errorf("empty sweep should render nothing, got %q", got)
	}

	chart := GenerateUsageSweepChart([]engine.SweepPoint{
		{Usage: 0.20, RawStar: 0.62, Star: 0.62},
		{Usage: 0.30, RawStar: 0.70, Star: 0.45},
	})
	for _, want := range []string{"xychart-beta", `x-axis ["20%", "30%"]`, "line [62.0, 70.0]", "line [62.0, 45.0]"} {
		if !strings.Contains(chart, want) {
			t.Errorf("chart missing %q:\n%s", want, chart)
		}
	}
}

func TestGenerateUsageSweepChart_Subsamples(t *testing.T) {
	points := make([]engine.SweepPoint, 100)
	for i := range points {
		points[i] = engine.SweepPoint{Usage: 0.004 * float64(i+1)}
	}
	chart := GenerateUsageSweepChart(points)
	axis := ""
	for _, line := range strings.Split(chart, "\n") {
		if strings.Contains(line, "x-axis") {
			axis = line
		}
	}
	if n := strings.Count(axis, "%"); n > 41 {
		t.Errorf("expected at most 41 labels, got %d", n)
	}
}

func TestGenerateDependenceChart(t *testing.T) {
	if got := GenerateDependenceChart(dependence.Score{}); got != "" {
		t.Errorf("undefined score should render nothing, got %q", got)
	}
	score := dependence.Score{
		Value:    0.55,
		Defined:  true,
		Coverage: dependence.CoverageFull,
		Components: []dependence.Component{
			{Name: "assisted", Contribution: 0.2, Source: dependence.SourcePrimary},
			{Name: "open", Contribution: 0.175, Source: dependence.SourcePrimary},
			{Name: "self_generated", Contribution: 0.175, Source: dependence.SourcePrimary},
		},
	}
	chart := GenerateDependenceChart(score)
	if !strings.Contains(chart, "bar [0.200, 0.175, 0.175]") {
		t.Errorf("unexpected chart:\n%s", chart)
	}
}
