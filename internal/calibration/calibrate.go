package calibration

import (
	"fmt"
	"time"

	"usage-projection/internal/features"
	"usage-projection/internal/stats"

	"github.com/rs/zerolog/log"
)

// Calibrate computes every threshold in specs from the historical rows.
// Each threshold only sees the rows that satisfy its own predicates and
// carry a value for its source. An empty qualifying subset fails the whole
// calibration; there is no silent fallback.
func Calibrate(rows []features.Row, preds Predicates, specs []ThresholdSpec, derivers map[string]Deriver) (*Table, error) {
	if err := preds.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSpecs(specs, preds); err != nil {
		return nil, err
	}

	t := &Table{
		calibratedAt:   time.Now().UTC().Format(time.RFC3339),
		populationSize: len(rows),
		values:         make(map[string]float64, len(specs)),
		provenance:     make(map[string]Provenance, len(specs)),
	}

	for _, spec := range specs {
		column, err := extractColumn(rows, preds, spec, derivers)
		if err != nil {
			return nil, err
		}
		if len(column) == 0 {
			err := &Error{
				Threshold: spec.Name,
				Detail:    fmt.Sprintf("source %s, requires %v, %d rows scanned", spec.Source, spec.Requires, len(rows)),
				Err:       ErrEmptyPopulation,
			}
			log.Error().Err(err).Str("threshold", spec.Name).Msg("Calibration failed")
			return nil, err
		}

		pv, _ := stats.Percentile(column, spec.Percentile)
		value := pv
		prov := Provenance{
			Source:          spec.Source,
			Percentile:      spec.Percentile,
			Qualifying:      len(column),
			PercentileValue: pv,
			Median:          stats.CalculateMedianContinuous(column),
		}
		if spec.Bound != nil {
			b := *spec.Bound
			prov.Bound = &b
			value, prov.BoundApplied = b.apply(pv)
		}

		t.values[spec.Name] = value
		t.provenance[spec.Name] = prov

		log.Debug().
			Str("threshold", spec.Name).
			Float64("percentileValue", pv).
			Float64("value", value).
			Bool("boundApplied", prov.BoundApplied).
			Int("qualifying", len(column)).
			Msg("Threshold calibrated")
	}

	t.version = fingerprint(t.values)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("version", t.version).
		Int("population", len(rows)).
		Int("thresholds", len(t.values)).
		Msg("Threshold table calibrated")
	return t, nil
}

func extractColumn(rows []features.Row, preds Predicates, spec ThresholdSpec, derivers map[string]Deriver) ([]float64, error) {
	var read Deriver
	if n, ok := features.Lookup(spec.Source); ok {
		read = func(v features.Vector) (float64, bool) { return v.Get(n) }
	} else {
		d, ok := derivers[spec.Source]
		if !ok || d == nil {
			return nil, &Error{Threshold: spec.Name, Detail: "no deriver for " + spec.Source, Err: ErrInvalidSpec}
		}
		read = d
	}

	column := make([]float64, 0, len(rows))
	for _, r := range rows {
		ok, err := preds.Qualifies(r.Features, spec.Requires)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if x, ok := read(r.Features); ok {
			column = append(column, x)
		}
	}
	return column, nil
}
