package visuals

import (
	"fmt"
	"math"
	"strings"

	"usage-projection/internal/dependence"
	"usage-projection/internal/engine"
)

// GenerateUsageSweepChart creates a Mermaid xychart-beta comparing the raw and
// gated star-level probability across usage levels.
func GenerateUsageSweepChart(points []engine.SweepPoint) string {
	if len(points) == 0 {
		return ""
	}

	var labels []string
	var raw []string
	var gated []string

	// Mermaid's layout starts overlapping labels past roughly 40 points
	step := 1
	if len(points) > 40 {
		step = int(math.Ceil(float64(len(points)) / 40.0))
	}

	for i, p := range points {
		if i%step != 0 && i != len(points)-1 {
			continue
		}
		labels = append(labels, fmt.Sprintf("\"%.0f%%\"", p.Usage*100))
		raw = append(raw, fmt.Sprintf("%.1f", p.RawStar*100))
		gated = append(gated, fmt.Sprintf("%.1f", p.Star*100))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Star Probability by Usage (raw vs gated)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"Star Probability (%)\" 0 --> 100\n")
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(raw, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(gated, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateDependenceChart creates a Mermaid bar chart of the weighted
// dependence components.
func GenerateDependenceChart(score dependence.Score) string {
	if !score.Defined {
		return ""
	}

	var labels []string
	var values []string
	for _, c := range score.Components {
		labels = append(labels, fmt.Sprintf("\"%s (%s)\"", c.Name, c.Source))
		values = append(values, fmt.Sprintf("%.3f", c.Contribution))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"Dependence Score %.2f (%s)\"\n", score.Value, score.Coverage))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"Contribution\" 0 --> 1\n")
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}
