package main

import (
	"flag"
	"fmt"
	"os"

	"usage-projection/cmd/mockgen/engine"
)

func main() {
	scenario := flag.String("scenario", "mild", "Scenario to generate: mild, chaos, drift")
	outDir := flag.String("out", "./data", "Output directory for mock files")
	players := flag.Int("players", 300, "Number of players to generate")
	seasons := flag.Int("seasons", 4, "Seasons per player")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		Scenario: *scenario,
		Players:  *players,
		Seasons:  *seasons,
		Seed:     *seed,
	}

	fmt.Printf("Generating scenario '%s' (Players: %d, Seasons: %d) to %s...\n", cfg.Scenario, cfg.Players, cfg.Seasons, *outDir)

	rows := engine.Generate(cfg)
	if err := engine.Save(*outDir, rows, engine.DemoModel()); err != nil {
		fmt.Printf("Failed to save mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done. %d rows written.\n", len(rows))
}
