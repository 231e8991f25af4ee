package calibration

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"maps"
	"math"
	"os"
	"slices"
	"strings"

	"usage-projection/internal/artifact"
)

// Provenance records how a calibrated value was obtained.
type Provenance struct {
	Source          string  `json:"source"`
	Percentile      float64 `json:"percentile"`
	Qualifying      int     `json:"qualifying"`
	PercentileValue float64 `json:"percentile_value"`
	Median          float64 `json:"median,omitempty"`
	Bound           *Bound  `json:"bound,omitempty"`
	BoundApplied    bool    `json:"bound_applied,omitempty"`
}

// Table is the immutable set of calibrated thresholds. It is safe to share
// between goroutines; replacing it means building a new Table.
type Table struct {
	version        string
	calibratedAt   string
	populationSize int
	degraded       bool
	modelVersion   string
	values         map[string]float64
	provenance     map[string]Provenance
}

// tableFile is the persisted form of a Table.
type tableFile struct {
	Version        string                `json:"version"`
	CalibratedAt   string                `json:"calibrated_at"`
	PopulationSize int                   `json:"population_size"`
	Degraded       bool                  `json:"degraded,omitempty"`
	ModelVersion   string                `json:"model_version,omitempty"`
	Values         map[string]float64    `json:"values"`
	Provenance     map[string]Provenance `json:"provenance,omitempty"`
}

// NewTable builds a table from explicit values. It is used for tables whose
// values come from outside the calibrator, such as fixtures and operator
// overrides.
func NewTable(values map[string]float64) (*Table, error) {
	t := &Table{values: maps.Clone(values)}
	t.version = fingerprint(t.values)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the named threshold.
func (t *Table) Get(name string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.values[name]
	return v, ok
}

// Values returns a copy of every threshold.
func (t *Table) Values() map[string]float64 {
	return maps.Clone(t.values)
}

// Names returns the threshold names, sorted.
func (t *Table) Names() []string {
	return slices.Sorted(maps.Keys(t.values))
}

// Provenance returns how the named threshold was computed.
func (t *Table) Provenance(name string) (Provenance, bool) {
	p, ok := t.provenance[name]
	return p, ok
}

// Version is a content fingerprint of the values.
func (t *Table) Version() string { return t.version }

// CalibratedAt is the RFC3339 calibration time, empty for hand-built tables.
func (t *Table) CalibratedAt() string { return t.calibratedAt }

// PopulationSize is the number of rows the table was calibrated from.
func (t *Table) PopulationSize() int { return t.populationSize }

// Degraded reports whether the table holds fallback literals.
func (t *Table) Degraded() bool { return t.degraded }

// ModelVersion names the classifier whose output produced the derived
// thresholds. It is empty for hand-built and fallback tables.
func (t *Table) ModelVersion() string { return t.modelVersion }

// ForModel returns a copy of t stamped with the classifier version.
func (t *Table) ForModel(version string) *Table {
	c := *t
	c.modelVersion = version
	return &c
}

// Missing lists the thresholds named by specs that t does not carry.
func (t *Table) Missing(specs []ThresholdSpec) []string {
	var missing []string
	for _, s := range specs {
		if _, ok := t.values[s.Name]; !ok {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// Validate checks that values are finite and every *_low pair sits at or
// below its *_high counterpart.
func (t *Table) Validate() error {
	if len(t.values) == 0 {
		return fmt.Errorf("%w: no thresholds", ErrInvalidTable)
	}
	for name, v := range t.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidTable, name)
		}
		if base, ok := strings.CutSuffix(name, "_low"); ok {
			if hi, ok := t.values[base+"_high"]; ok && v > hi {
				return fmt.Errorf("%w: %s (%.4f) above %s_high (%.4f)", ErrInvalidTable, name, v, base, hi)
			}
		}
	}
	return nil
}

// MarshalJSON writes the persisted form.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableFile{
		Version:        t.version,
		CalibratedAt:   t.calibratedAt,
		PopulationSize: t.populationSize,
		Degraded:       t.degraded,
		ModelVersion:   t.modelVersion,
		Values:         t.values,
		Provenance:     t.provenance,
	})
}

// UnmarshalJSON validates the persisted form against its schema.
func (t *Table) UnmarshalJSON(data []byte) error {
	f, err := artifact.Decode[tableFile](data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	*t = Table{
		version:        f.Version,
		calibratedAt:   f.CalibratedAt,
		populationSize: f.PopulationSize,
		degraded:       f.Degraded,
		modelVersion:   f.ModelVersion,
		values:         f.Values,
		provenance:     f.Provenance,
	}
	if t.version == "" {
		t.version = fingerprint(t.values)
	}
	return t.Validate()
}

// Save persists the table at path.
func Save(path string, t *Table) error {
	return artifact.WriteFile(path, t)
}

// Load reads a persisted table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &t, nil
}

// FallbackTable returns literal thresholds for degraded operation. The table
// is flagged Degraded and every result computed with it carries that flag.
func FallbackTable() *Table {
	values := map[string]float64{
		InefficiencyFloor:     0.535,
		RimPressureFloor:      0.22,
		ShotQualityDeltaFloor: -0.02,
		CreationTaxFloor:      -0.05,
		CreationTaxCollapse:   -0.10,
		TurnoverCeiling:       0.14,
		FTRateFloor:           0.18,
		FTRateElite:           0.38,
		EliteRimFG:            0.66,
		RimAppetiteElite:      0.38,
		ClutchCollapse:        -0.08,
		PressureCollapse:      0.36,
		DependenceLow:         0.40,
		DependenceHigh:        0.60,
		PerformanceLow:        0.30,
		PerformanceHigh:       0.55,
	}
	return &Table{
		version:  "fallback-" + fingerprint(values),
		degraded: true,
		values:   values,
	}
}

func fingerprint(values map[string]float64) string {
	h := fnv.New64a()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(h, "%s=%.10g;", k, values[k])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
