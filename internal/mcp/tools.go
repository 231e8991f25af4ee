package mcp

import (
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// PredictInput selects a player either inline or from the store.
type PredictInput struct {
	Features    map[string]float64 `json:"features,omitempty" jsonschema:"Inline feature vector keyed by feature name (e.g. ts_pct, usg_pct). Mutually exclusive with entity_id."`
	Prior       map[string]float64 `json:"prior,omitempty" jsonschema:"Optional prior-season feature vector for inline requests."`
	EntityID    string             `json:"entity_id,omitempty" jsonschema:"Player identifier in the historical store."`
	Season      string             `json:"season,omitempty" jsonschema:"Season of the stored row (e.g. 2023-24). Required with entity_id."`
	TargetUsage float64            `json:"target_usage" jsonschema:"Hypothetical usage rate in (0, 0.45]."`
}

// SweepInput projects a player across several usage levels.
type SweepInput struct {
	Features map[string]float64 `json:"features,omitempty" jsonschema:"Inline feature vector keyed by feature name. Mutually exclusive with entity_id."`
	Prior    map[string]float64 `json:"prior,omitempty" jsonschema:"Optional prior-season feature vector for inline requests."`
	EntityID string             `json:"entity_id,omitempty" jsonschema:"Player identifier in the historical store."`
	Season   string             `json:"season,omitempty" jsonschema:"Season of the stored row. Required with entity_id."`
	Levels   []float64          `json:"levels,omitempty" jsonschema:"Usage levels to project. Defaults to 0.12 through 0.40 in steps of 0.02."`
}

// ThresholdsInput takes no arguments.
type ThresholdsInput struct{}

// RecalibrateInput controls whether a recalibrated table is installed.
type RecalibrateInput struct {
	DryRun bool `json:"dry_run,omitempty" jsonschema:"Compute and return the table without installing or saving it."`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name: "predict_projection",
		Description: "Project a player's performance class at a hypothetical usage rate and run the risk-gate hierarchy over the result. " +
			"Returns the raw and gated class distributions, the star-level probability, the dependence score and the risk quadrant.\n\n" +
			"Guidance: Report the GATED star probability, never the raw one, and name every fired gate and applied exemption when explaining the label. " +
			"If 'data_insufficient' is true the projection is capped and MUST be presented as unreliable.",
	}, s.handlePredict)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name: "sweep_usage",
		Description: "Project the same player across a range of usage levels to show where efficiency gates start firing. " +
			"Use this to answer 'how much usage can this player absorb' questions.\n\n" +
			"Guidance: The sweep is a what-if curve, not a forecast of the player's actual usage.",
	}, s.handleSweep)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name: "get_thresholds",
		Description: "Return the installed threshold table: its version, when and on how many rows it was calibrated, every value with its provenance, " +
			"and whether it is the degraded fallback table.",
	}, s.handleGetThresholds)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name: "recalibrate_thresholds",
		Description: "Recompute every threshold from the historical population in the store and install the result atomically. " +
			"In-flight projections finish on the previous table.\n\n" +
			"Guidance: Compare the returned version with the previous one before re-running projections.",
	}, s.handleRecalibrate)
}
