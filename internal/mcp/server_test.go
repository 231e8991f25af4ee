package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-projection/internal/calibration"
	"usage-projection/internal/config"
	"usage-projection/internal/engine"
	"usage-projection/internal/features"
	"usage-projection/internal/model"
	"usage-projection/internal/stats"
	"usage-projection/internal/store"
)

var efficiencyClassifier = model.ClassifierFunc(func(v features.Vector) (model.Distribution, error) {
	ts, _ := v.Get(features.TSPct)
	star := stats.Clamp01((ts - 0.40) / 0.40)
	return model.Distribution{star * 0.7, star * 0.3, (1 - star) * 0.6, (1 - star) * 0.4}, nil
})

func player() features.Vector {
	return features.Vector{}.
		With(features.GamesPlayed, 70).
		With(features.FGA, 900).
		With(features.ClutchMinutes, 100).
		With(features.PressureAttempts, 200).
		With(features.RimAttempts, 200).
		With(features.Age, 26).
		With(features.Usage, 0.22).
		With(features.TSPct, 0.60).
		With(features.FTRate, 0.25).
		With(features.RimAppetite, 0.30).
		With(features.RimFGPct, 0.64).
		With(features.CreationTax, -0.02).
		With(features.CreationVolumeRatio, 0.5).
		With(features.ShotQualityDelta, 0.0).
		With(features.ClutchTSDelta, 0.0).
		With(features.PressureResilience, 0.55).
		With(features.TOVPct, 0.12).
		With(features.AssistedFGPct, 0.5).
		With(features.OpenShotFreq, 0.5).
		With(features.SelfCreatedFreq, 0.3)
}

func populationStore() *store.PopulationStore {
	ps := store.NewPopulationStore()
	rows := make([]features.Row, 20)
	for i := range rows {
		v := player().
			With(features.TSPct, 0.50+0.01*float64(i)).
			With(features.PressureResilience, 0.40+0.01*float64(i))
		rows[i] = features.Row{EntityID: fmt.Sprintf("P%02d", i), Season: "2023-24", Features: v}
	}
	rows = append(rows, features.Row{
		EntityID: "P00",
		Season:   "2022-23",
		Features: player().With(features.Usage, 0.18).With(features.TSPct, 0.55),
	})
	ps.Append(rows)
	return ps
}

type harness struct {
	server  *Server
	engine  *engine.Engine
	session *sdk.ClientSession
	cfg     *config.AppConfig
}

func newHarness(t *testing.T, withProvider bool) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := &config.AppConfig{
		ThresholdsPath:      filepath.Join(t.TempDir(), "thresholds.json"),
		EnableMermaidCharts: true,
	}
	eng := engine.New(efficiencyClassifier, calibration.FallbackTable())

	var provider store.Provider
	if withProvider {
		provider = populationStore()
	}
	srv := NewServer(cfg, eng, provider)

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return &harness{server: srv, engine: eng, session: cs, cfg: cfg}
}

func (h *harness) call(t *testing.T, name string, args map[string]any) (*sdk.CallToolResult, error) {
	t.Helper()
	return h.session.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Guidance []string        `json:"guidance"`
}

func decode(t *testing.T, res *sdk.CallToolResult) envelope {
	t.Helper()
	require.False(t, res.IsError, "tool returned an error: %v", texts(res))
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env))
	return env
}

func texts(res *sdk.CallToolResult) []string {
	var out []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}

func isToolError(res *sdk.CallToolResult, err error) bool {
	return err != nil || (res != nil && res.IsError)
}

func TestListTools(t *testing.T) {
	h := newHarness(t, true)
	res, err := h.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"predict_projection", "sweep_usage", "get_thresholds", "recalibrate_thresholds"}, names)
}

func TestPredictProjection_Inline(t *testing.T) {
	h := newHarness(t, false)

	res, err := h.call(t, "predict_projection", map[string]any{
		"features":     player().Map(),
		"target_usage": 0.28,
	})
	require.NoError(t, err)
	env := decode(t, res)

	var result struct {
		TargetUsage      float64 `json:"target_usage"`
		PerformanceScore float64 `json:"performance_score"`
		Degraded         bool    `json:"degraded_thresholds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.InDelta(t, 0.28, result.TargetUsage, 1e-12)
	assert.True(t, result.Degraded)
	assert.Contains(t, env.Warnings, degradedWarning)
	assert.NotEmpty(t, env.Guidance)

	// Dependence chart rides along as a second content block.
	all := texts(res)
	require.Len(t, all, 2)
	assert.True(t, strings.HasPrefix(all[1], "```mermaid"))
}

func TestPredictProjection_EntityLookup(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.call(t, "predict_projection", map[string]any{
		"entity_id":    "P00",
		"season":       "2023-24",
		"target_usage": 0.25,
	})
	require.NoError(t, err)
	env := decode(t, res)

	var result struct {
		Features map[string]float64 `json:"features"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	// The prior season was found, so the trajectory delta was derived.
	assert.InDelta(t, 0.50-0.55, result.Features["ts_yoy_delta"], 1e-9)
	assert.InDelta(t, 0.25, result.Features["usg_pct"], 1e-12)
}

func TestPredictProjection_Errors(t *testing.T) {
	h := newHarness(t, false)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"no subject", map[string]any{"target_usage": 0.25}},
		{"both subjects", map[string]any{"features": player().Map(), "entity_id": "P00", "season": "2023-24", "target_usage": 0.25}},
		{"entity without store", map[string]any{"entity_id": "P00", "season": "2023-24", "target_usage": 0.25}},
		{"unknown feature", map[string]any{"features": map[string]any{"wingspan": 2.1}, "target_usage": 0.25}},
		{"usage out of range", map[string]any{"features": player().Map(), "target_usage": 0.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.call(t, "predict_projection", tt.args)
			assert.True(t, isToolError(res, err))
		})
	}
}

func TestPredictProjection_UnknownSeason(t *testing.T) {
	h := newHarness(t, true)
	res, err := h.call(t, "predict_projection", map[string]any{
		"entity_id":    "P00",
		"season":       "1999-00",
		"target_usage": 0.25,
	})
	assert.True(t, isToolError(res, err))
}

func TestSweepUsage(t *testing.T) {
	h := newHarness(t, false)

	res, err := h.call(t, "sweep_usage", map[string]any{
		"features": player().Map(),
		"levels":   []float64{0.15, 0.25, 0.35},
	})
	require.NoError(t, err)
	env := decode(t, res)

	var points []engine.SweepPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	require.Len(t, points, 3)
	assert.InDelta(t, 0.15, points[0].Usage, 1e-12)
	assert.InDelta(t, 0.35, points[2].Usage, 1e-12)
	assert.Len(t, texts(res), 2)
}

func TestSweepUsage_WarnsOnInsufficientPoints(t *testing.T) {
	h := newHarness(t, false)

	res, err := h.call(t, "sweep_usage", map[string]any{
		"features": player().With(features.FGA, 80).Map(),
		"levels":   []float64{0.15, 0.25},
	})
	require.NoError(t, err)
	env := decode(t, res)

	var points []engine.SweepPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	for _, p := range points {
		assert.True(t, p.DataInsufficient)
		assert.True(t, p.Degraded)
	}
	assert.Contains(t, env.Warnings, degradedWarning)

	var found bool
	for _, w := range env.Warnings {
		if strings.Contains(w, "15%, 25%") {
			found = true
		}
	}
	assert.True(t, found, "expected a sufficiency warning naming both levels, got %v", env.Warnings)
	assert.Equal(t, []string{"No risk gate fired in the swept range."}, env.Guidance)
}

func TestResultWarnings_ImputationPolicy(t *testing.T) {
	r := engine.Result{ImputedFeatures: []string{"ts_yoy_delta"}, MissingPolicy: "median_imputation"}
	assert.Contains(t, resultWarnings(r), "The classifier imputed missing inputs (median_imputation): ts_yoy_delta.")

	r.MissingPolicy = ""
	assert.Contains(t, resultWarnings(r), "The classifier imputed missing inputs (unspecified): ts_yoy_delta.")
}

func TestSweepUsage_DefaultLevels(t *testing.T) {
	h := newHarness(t, false)
	res, err := h.call(t, "sweep_usage", map[string]any{"features": player().Map()})
	require.NoError(t, err)
	env := decode(t, res)

	var points []engine.SweepPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	assert.Len(t, points, len(DefaultSweepLevels))
}

func TestGetThresholds(t *testing.T) {
	h := newHarness(t, false)
	res, err := h.call(t, "get_thresholds", map[string]any{})
	require.NoError(t, err)
	env := decode(t, res)

	var table struct {
		Version  string             `json:"version"`
		Degraded bool               `json:"degraded"`
		Values   map[string]float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &table))
	assert.Equal(t, h.engine.Thresholds().Version(), table.Version)
	assert.True(t, table.Degraded)
	assert.Contains(t, table.Values, calibration.InefficiencyFloor)
}

func TestRecalibrateThresholds(t *testing.T) {
	h := newHarness(t, true)
	before := h.engine.Thresholds().Version()

	res, err := h.call(t, "recalibrate_thresholds", map[string]any{"dry_run": true})
	require.NoError(t, err)
	env := decode(t, res)
	var dry struct {
		Installed bool   `json:"installed"`
		Version   string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dry))
	assert.False(t, dry.Installed)
	assert.Equal(t, before, h.engine.Thresholds().Version(), "dry run must not install")

	res, err = h.call(t, "recalibrate_thresholds", map[string]any{})
	require.NoError(t, err)
	env = decode(t, res)
	var live struct {
		PreviousVersion string `json:"previous_version"`
		Version         string `json:"version"`
		Changed         bool   `json:"changed"`
		PopulationSize  int    `json:"population_size"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &live))
	assert.Equal(t, before, live.PreviousVersion)
	assert.Equal(t, dry.Version, live.Version)
	assert.True(t, live.Changed)
	assert.Equal(t, 21, live.PopulationSize)
	assert.Equal(t, live.Version, h.engine.Thresholds().Version())
	assert.False(t, h.engine.Thresholds().Degraded())

	saved, err := calibration.Load(h.cfg.ThresholdsPath)
	require.NoError(t, err)
	assert.Equal(t, live.Version, saved.Version())
}

func TestRecalibrateThresholds_NoProvider(t *testing.T) {
	h := newHarness(t, false)
	res, err := h.call(t, "recalibrate_thresholds", map[string]any{})
	assert.True(t, isToolError(res, err))
}
