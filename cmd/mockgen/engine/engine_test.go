package engine

import (
	"path/filepath"
	"testing"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
	projection "usage-projection/internal/engine"
	"usage-projection/internal/features"
	"usage-projection/internal/model"
	"usage-projection/internal/policy"
	"usage-projection/internal/store"
)

func TestGenerate_Deterministic(t *testing.T) {
	cfg := GeneratorConfig{Scenario: "mild", Players: 10, Seasons: 3, Seed: 7}
	a := Generate(cfg)
	b := Generate(cfg)

	if len(a) != 30 {
		t.Fatalf("expected 30 rows, got %d", len(a))
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			t.Fatalf("row %d key differs: %s vs %s", i, a[i].Key(), b[i].Key())
		}
		if a[i].Features.Map()["ts_pct"] != b[i].Features.Map()["ts_pct"] {
			t.Fatalf("row %d is not reproducible", i)
		}
	}
}

func TestGenerate_ValidRows(t *testing.T) {
	for _, scen := range []string{"mild", "chaos", "drift"} {
		t.Run(scen, func(t *testing.T) {
			rows := Generate(GeneratorConfig{Scenario: scen, Players: 50, Seasons: 3, Seed: 1})
			for _, r := range rows {
				if err := r.Features.Validate(); err != nil {
					t.Fatalf("%s: %v", r.Key(), err)
				}
			}
			if rows[0].Season != "2018-19" || rows[2].Season != "2020-21" {
				t.Errorf("unexpected season labels %s, %s", rows[0].Season, rows[2].Season)
			}
			if _, ok := rows[0].Features.Get(features.GamesPlayed); !ok {
				t.Error("games played missing")
			}
		})
	}
}

func TestGenerate_ChaosExercisesDependenceFallbacks(t *testing.T) {
	rows := Generate(GeneratorConfig{Scenario: "chaos", Players: 100, Seasons: 2, Seed: 3})
	calc := dependence.New(dependence.DefaultConfig())

	fallback := 0
	for _, r := range rows {
		if calc.Compute(r.Features).Coverage == dependence.CoverageFallback {
			fallback++
		}
	}
	if fallback == 0 {
		t.Error("expected some rows to rely on dependence proxies")
	}
}

func TestSaveAndCalibrate(t *testing.T) {
	dir := t.TempDir()
	rows := Generate(GeneratorConfig{Scenario: "mild", Players: 120, Seasons: 2, Seed: 11})
	if err := Save(dir, rows, DemoModel()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ps := store.NewPopulationStore()
	if err := ps.Load(filepath.Join(dir, PopulationFile)); err != nil {
		t.Fatalf("Load population: %v", err)
	}
	if ps.Count() != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), ps.Count())
	}

	m, err := model.Load(filepath.Join(dir, ModelFile))
	if err != nil {
		t.Fatalf("Load model: %v", err)
	}
	pol, err := policy.Load(filepath.Join(dir, PolicyFile))
	if err != nil {
		t.Fatalf("Load policy: %v", err)
	}

	e := projection.New(m, nil,
		projection.WithPredicates(pol.Predicates),
		projection.WithSpecs(pol.Thresholds),
		projection.WithDependence(pol.Dependence),
	)
	tbl, err := e.Recalibrate(rows)
	if err != nil {
		t.Fatalf("Recalibrate: %v", err)
	}
	if tbl.Degraded() {
		t.Error("calibrated table must not be degraded")
	}
	low, _ := tbl.Get(calibration.PerformanceLow)
	high, _ := tbl.Get(calibration.PerformanceHigh)
	if !(low <= high) {
		t.Errorf("performance splits out of order: %v > %v", low, high)
	}

	res, err := e.Predict(rows[1].Features, 0.30, &rows[0].Features)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelVersion != "demo-1" {
		t.Errorf("ModelVersion = %q", res.ModelVersion)
	}
}
