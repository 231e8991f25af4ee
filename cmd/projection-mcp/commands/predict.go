package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"usage-projection/internal/features"
)

var (
	predictEntity   string
	predictSeason   string
	predictFeatures string
	predictUsage    float64
	predictSweep    []float64
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Project one player at a target usage (or across several) and print the result as JSON",
	Example: `  projection-mcp predict --entity 203999 --season 2023-24 --usage 0.30
  projection-mcp predict --features player.json --sweep 0.15,0.20,0.25,0.30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.installThresholds(ctx); err != nil {
			return err
		}

		var base features.Vector
		var prior *features.Vector
		switch {
		case predictFeatures != "":
			data, err := os.ReadFile(predictFeatures)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &base); err != nil {
				return fmt.Errorf("%s: %w", predictFeatures, err)
			}
		case predictEntity != "" && predictSeason != "":
			base, err = a.provider.Features(ctx, predictEntity, predictSeason)
			if err != nil {
				return err
			}
			prior, err = a.provider.Prior(ctx, predictEntity, predictSeason)
			if err != nil {
				return err
			}
		default:
			return errors.New("either --features or --entity with --season is required")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if len(predictSweep) > 0 {
			points, err := a.engine.Sweep(ctx, base, prior, predictSweep)
			if err != nil {
				return err
			}
			return enc.Encode(points)
		}
		res, err := a.engine.Predict(base, predictUsage, prior)
		if err != nil {
			return err
		}
		return enc.Encode(res)
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictEntity, "entity", "", "player id in the feature store")
	f.StringVar(&predictSeason, "season", "", "season of the stored row")
	f.StringVar(&predictFeatures, "features", "", "JSON file holding an inline feature vector")
	f.Float64Var(&predictUsage, "usage", 0.25, "target usage rate in (0, 0.45]")
	f.Float64SliceVar(&predictSweep, "sweep", nil, "usage levels to sweep instead of a single projection")
}
