package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"usage-projection/internal/features"
	"usage-projection/internal/model"
	"usage-projection/internal/policy"
)

// Output file names inside the target directory.
const (
	PopulationFile = "population.jsonl"
	ModelFile      = "model.json"
	PolicyFile     = "policy.yaml"
)

type GeneratorConfig struct {
	Scenario  string // "mild", "chaos" or "drift"
	Players   int
	Seasons   int
	FirstYear int
	Seed      uint64
}

// Generate builds a synthetic player-season population. Each player has a
// latent talent and a latent dependence on teammates that drive every
// observed feature, so the population has realistic correlations.
func Generate(cfg GeneratorConfig) []features.Row {
	if cfg.Seasons <= 0 {
		cfg.Seasons = 1
	}
	if cfg.FirstYear == 0 {
		cfg.FirstYear = 2018
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	noise := 1.0
	if cfg.Scenario == "chaos" {
		noise = 1.8
	}

	var rows []features.Row
	for p := 0; p < cfg.Players; p++ {
		id := fmt.Sprintf("MOCK-%04d", p+1)
		talent := rng.NormFloat64()
		dep := rng.Float64()
		age := 20 + rng.Float64()*10

		var prev *features.Vector
		for s := 0; s < cfg.Seasons; s++ {
			n := func(sd float64) float64 { return rng.NormFloat64() * sd * noise }

			// League-wide efficiency creep
			drift := 0.0
			if cfg.Scenario == "drift" {
				drift = 0.004 * float64(s)
			}

			usage := clamp(0.15+0.04*talent+0.04*(0.5-dep)+n(0.02), 0.08, 0.38)
			ts := clamp(0.55+0.03*talent-0.15*(usage-0.20)+drift+n(0.02), 0.40, 0.70)
			games := math.Round(20 + rng.Float64()*62)
			if cfg.Scenario == "chaos" && rng.Float64() < 0.25 {
				games = math.Round(3 + rng.Float64()*10)
			}
			fga := math.Round(games * usage * 55)

			v := features.Vector{}.
				With(features.GamesPlayed, games).
				With(features.FGA, fga).
				With(features.ClutchMinutes, math.Round(games*(0.3+rng.Float64()*2.2))).
				With(features.PressureAttempts, math.Round(fga*(0.2+rng.Float64()*0.2))).
				With(features.RimAttempts, math.Round(fga*(0.2+rng.Float64()*0.2))).
				With(features.Age, math.Round(age+float64(s))).
				With(features.Usage, usage).
				With(features.TSPct, ts).
				With(features.FTRate, clamp(0.22+0.05*talent+n(0.05), 0.05, 0.60)).
				With(features.TOVPct, clamp(0.12+0.5*(usage-0.20)+n(0.02), 0.04, 0.25)).
				With(features.ASTPct, clamp(0.10+0.8*(usage-0.12)+n(0.04), 0.02, 0.45)).
				With(features.RimAppetite, clamp(0.28+0.08*(1-dep)+n(0.04), 0.10, 0.55)).
				With(features.RimFGPct, clamp(0.63+0.02*talent+n(0.03), 0.50, 0.78)).
				With(features.CreationTax, -0.08*dep+0.02*talent+n(0.02)).
				With(features.CreationVolumeRatio, clamp(0.9*(1-dep)+n(0.05), 0, 2)).
				With(features.ShotQualityDelta, 0.02*talent+n(0.02)).
				With(features.ClutchTSDelta, n(0.05)).
				With(features.PressureResilience, clamp(0.50+0.10*talent+n(0.08), 0, 1)).
				With(features.AssistedFGPct, clamp(0.30+0.50*dep+n(0.05), 0, 1)).
				With(features.CatchShootFreq, clamp(0.20+0.40*dep+n(0.05), 0, 1)).
				With(features.OpenShotFreq, clamp(0.30+0.40*dep+n(0.05), 0, 1)).
				With(features.SelfCreatedFreq, clamp(0.60-0.50*dep+n(0.05), 0, 1))
			open, _ := v.Get(features.OpenShotFreq)
			v = v.With(features.ContestedShotFreq, clamp(0.9-open, 0, 1))

			// Tracking data is patchy, so some seasons only carry the proxies.
			if cfg.Scenario == "chaos" && rng.Float64() < 0.2 {
				v = v.Without(features.AssistedFGPct).Without(features.OpenShotFreq)
			}

			if prev != nil {
				pu, _ := prev.Get(features.Usage)
				pt, _ := prev.Get(features.TSPct)
				v = v.With(features.PriorUsage, pu).With(features.PriorTSPct, pt)
			}

			rows = append(rows, features.Row{
				EntityID: id,
				Season:   fmt.Sprintf("%d-%02d", cfg.FirstYear+s, (cfg.FirstYear+s+1)%100),
				Features: v,
			})
			cur := v
			prev = &cur
			talent += rng.NormFloat64() * 0.15
		}
	}
	return rows
}

// DemoModel returns a hand-weighted classifier artifact that behaves
// plausibly on generated data. It is not trained.
func DemoModel() model.Artifact {
	return model.Artifact{
		Version: "demo-1",
		Classes: []string{"king", "bulldozer", "sniper", "victim"},
		Features: []string{
			features.TSPct.String(),
			features.Usage.String(),
			features.FTRate.String(),
			features.TOVPct.String(),
			features.UsageXCreationTax.String(),
			features.UsageXPressureResilience.String(),
			features.TSYoYDelta.String(),
			features.ShotQualityDelta.String(),
		},
		Means:   []float64{0.55, 0.20, 0.25, 0.13, -0.006, 0.10, 0, 0},
		Scales:  []float64{0.04, 0.05, 0.08, 0.03, 0.01, 0.03, 0.03, 0.02},
		Medians: []float64{0.55, 0.20, 0.25, 0.13, -0.006, 0.10, 0, 0},
		Coefficients: [][]float64{
			{1.6, 0.8, 0.5, -0.8, 0.6, 0.7, 0.3, 0.5},
			{0.4, 1.2, 0.6, -0.2, -0.3, -0.2, 0.1, 0.0},
			{1.0, -0.9, -0.1, -0.4, 0.2, 0.2, 0.2, 0.6},
			{-1.6, -0.3, -0.6, 0.9, -0.6, -0.7, -0.3, -0.6},
		},
		Intercepts: []float64{-0.8, -0.6, 0.2, 0.3},
	}
}

// Save writes the population, the demo model and the default policy to outDir.
func Save(outDir string, rows []features.Row, art model.Artifact) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(outDir, PopulationFile))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if err := model.Save(filepath.Join(outDir, ModelFile), art); err != nil {
		return err
	}
	return policy.Default().Save(filepath.Join(outDir, PolicyFile))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
