package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
	"usage-projection/internal/engine"
	"usage-projection/internal/features"
	"usage-projection/internal/quadrant"
	"usage-projection/internal/visuals"
)

// DefaultSweepLevels is used when sweep_usage is called without levels.
var DefaultSweepLevels = func() []float64 {
	var levels []float64
	for u := 12; u <= 40; u += 2 {
		levels = append(levels, float64(u)/100)
	}
	return levels
}()

var errNoProvider = errors.New("no historical store is configured; pass an inline 'features' vector instead")

func (s *Server) handlePredict(ctx context.Context, _ *sdk.CallToolRequest, in PredictInput) (*sdk.CallToolResult, any, error) {
	base, prior, err := s.resolveSubject(ctx, in.Features, in.Prior, in.EntityID, in.Season)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.engine.Predict(base, in.TargetUsage, prior)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("entity", in.EntityID).
		Float64("usage", in.TargetUsage).
		Float64("star", res.PerformanceScore).
		Str("quadrant", string(res.Quadrant.Quadrant)).
		Msg("Projection computed")

	env := ResponseEnvelope{
		Data:     res,
		Warnings: resultWarnings(res),
		Guidance: []string{
			fmt.Sprintf("Headline: %s at %.0f%% usage (%s).", res.PerformanceLabel, in.TargetUsage*100, res.Quadrant.Label),
		},
	}
	chart := ""
	if s.cfg.EnableMermaidCharts {
		chart = visuals.GenerateDependenceChart(res.Dependence)
	}
	return s.formatResult(env, chart), nil, nil
}

func (s *Server) handleSweep(ctx context.Context, _ *sdk.CallToolRequest, in SweepInput) (*sdk.CallToolResult, any, error) {
	base, prior, err := s.resolveSubject(ctx, in.Features, in.Prior, in.EntityID, in.Season)
	if err != nil {
		return nil, nil, err
	}
	levels := in.Levels
	if len(levels) == 0 {
		levels = DefaultSweepLevels
	}

	points, err := s.engine.Sweep(ctx, base, prior, levels)
	if err != nil {
		return nil, nil, err
	}

	var (
		warnings     []string
		degraded     bool
		insufficient []string
	)
	firstFire := -1.0
	for _, p := range points {
		degraded = degraded || p.Degraded
		if p.DataInsufficient {
			insufficient = append(insufficient, fmt.Sprintf("%.0f%%", p.Usage*100))
			continue
		}
		if len(p.Fired) > 0 && (firstFire < 0 || p.Usage < firstFire) {
			firstFire = p.Usage
		}
	}
	if degraded {
		warnings = append(warnings, degradedWarning)
	}
	if len(insufficient) > 0 {
		warnings = append(warnings, fmt.Sprintf("Sample is below the sufficiency requirements at %s usage; those points are capped and their labels are not reliable.", strings.Join(insufficient, ", ")))
	}
	var guidance []string
	if firstFire > 0 {
		guidance = append(guidance, fmt.Sprintf("Risk gates start firing at %.0f%% usage.", firstFire*100))
	} else {
		guidance = append(guidance, "No risk gate fired in the swept range.")
	}

	chart := ""
	if s.cfg.EnableMermaidCharts {
		chart = visuals.GenerateUsageSweepChart(points)
	}
	return s.formatResult(ResponseEnvelope{Data: points, Warnings: warnings, Guidance: guidance}, chart), nil, nil
}

func (s *Server) handleGetThresholds(_ context.Context, _ *sdk.CallToolRequest, _ ThresholdsInput) (*sdk.CallToolResult, any, error) {
	t := s.engine.Thresholds()
	if t == nil {
		return nil, nil, engine.ErrNoThresholds
	}
	var warnings []string
	if t.Degraded() {
		warnings = append(warnings, degradedWarning)
	}
	return s.formatResult(ResponseEnvelope{Data: t, Warnings: warnings}), nil, nil
}

func (s *Server) handleRecalibrate(ctx context.Context, _ *sdk.CallToolRequest, in RecalibrateInput) (*sdk.CallToolResult, any, error) {
	if s.provider == nil {
		return nil, nil, errNoProvider
	}
	rows, err := s.provider.Population(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read population: %w", err)
	}

	previous := ""
	if t := s.engine.Thresholds(); t != nil {
		previous = t.Version()
	}

	var table *calibration.Table
	if in.DryRun {
		table, err = s.engine.Calibrate(rows)
	} else {
		table, err = s.engine.Recalibrate(rows)
	}
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	if !in.DryRun && s.cfg.ThresholdsPath != "" {
		if err := calibration.Save(s.cfg.ThresholdsPath, table); err != nil {
			log.Error().Err(err).Str("path", s.cfg.ThresholdsPath).Msg("Failed to persist threshold table")
			warnings = append(warnings, "The new table is installed but could not be saved; it will be lost on restart.")
		}
	}

	data := map[string]any{
		"previous_version": previous,
		"version":          table.Version(),
		"changed":          previous != table.Version(),
		"installed":        !in.DryRun,
		"population_size":  table.PopulationSize(),
		"thresholds":       table,
	}
	return s.formatResult(ResponseEnvelope{Data: data, Warnings: warnings}), nil, nil
}

// resolveSubject returns the base vector and optional prior for a request.
func (s *Server) resolveSubject(ctx context.Context, inline, inlinePrior map[string]float64, entityID, season string) (features.Vector, *features.Vector, error) {
	switch {
	case len(inline) > 0 && entityID != "":
		return features.Vector{}, nil, errors.New("provide either 'features' or 'entity_id', not both")
	case len(inline) > 0:
		base, err := features.FromMap(inline)
		if err != nil {
			return features.Vector{}, nil, err
		}
		if len(inlinePrior) == 0 {
			return base, nil, nil
		}
		prior, err := features.FromMap(inlinePrior)
		if err != nil {
			return features.Vector{}, nil, fmt.Errorf("prior: %w", err)
		}
		return base, &prior, nil
	case entityID != "":
		if s.provider == nil {
			return features.Vector{}, nil, errNoProvider
		}
		if season == "" {
			return features.Vector{}, nil, errors.New("'season' is required with 'entity_id'")
		}
		base, err := s.provider.Features(ctx, entityID, season)
		if err != nil {
			return features.Vector{}, nil, err
		}
		prior, err := s.provider.Prior(ctx, entityID, season)
		if err != nil {
			return features.Vector{}, nil, err
		}
		return base, prior, nil
	default:
		return features.Vector{}, nil, errors.New("either 'features' or 'entity_id' with 'season' is required")
	}
}

const degradedWarning = "Thresholds are the uncalibrated fallback table; gate outcomes are provisional."

func resultWarnings(r engine.Result) []string {
	var w []string
	if r.Degraded {
		w = append(w, degradedWarning)
	}
	if r.Gates.DataInsufficient {
		w = append(w, "Sample is below the sufficiency requirements; the star probability is capped and the label is not reliable.")
	}
	if len(r.ImputedFeatures) > 0 {
		policy := r.MissingPolicy
		if policy == "" {
			policy = "unspecified"
		}
		w = append(w, fmt.Sprintf("The classifier imputed missing inputs (%s): %s.", policy, strings.Join(r.ImputedFeatures, ", ")))
	}
	switch r.Dependence.Coverage {
	case dependence.CoveragePartial:
		w = append(w, "Dependence score was computed from a subset of its components.")
	case dependence.CoverageFallback:
		w = append(w, "Dependence score used proxy inputs for at least one component.")
	}
	if r.Quadrant.Quadrant == quadrant.DependenceUnknown {
		w = append(w, "Dependence could not be computed; no quadrant was assigned.")
	}
	return w
}
