package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"usage-projection/internal/assembler"
	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
	"usage-projection/internal/features"
	"usage-projection/internal/gates"
	"usage-projection/internal/model"
	"usage-projection/internal/quadrant"
)

var (
	// ErrNoThresholds is returned when predicting before a table is installed.
	ErrNoThresholds = errors.New("no threshold table installed")
	// ErrIncompleteThresholds rejects a table that lacks a configured threshold.
	ErrIncompleteThresholds = errors.New("threshold table is incomplete")
	// ErrStaleThresholds rejects a table calibrated against another model.
	ErrStaleThresholds = errors.New("threshold table was calibrated for a different model")
)

// Recorder observes predictions and table swaps.
type Recorder interface {
	ObservePrediction(r Result)
	ObserveThresholds(t *calibration.Table)
}

// Result is the terminal artifact of one prediction. It is never mutated
// after Predict returns it.
type Result struct {
	TargetUsage      float64          `json:"target_usage"`
	PerformanceScore float64          `json:"performance_score"`
	PerformanceLabel model.Class      `json:"performance_label"`
	Dependence       dependence.Score `json:"dependence"`
	Quadrant         quadrant.Result  `json:"quadrant"`
	Gates            gates.Outcome    `json:"gates"`
	ThresholdVersion string           `json:"threshold_version"`
	Degraded         bool             `json:"degraded_thresholds"`
	ModelVersion     string           `json:"model_version,omitempty"`
	ImputedFeatures  []string         `json:"imputed_features,omitempty"`
	MissingPolicy    string           `json:"missing_policy,omitempty"`
	Features         features.Vector  `json:"features"`
}

// Request is one unit of batch work.
type Request struct {
	ID    string
	Base  features.Vector
	Usage float64
	Prior *features.Vector
}

// Engine wires the assembler, classifier, gates, dependence calculator and
// quadrant categoriser. The classifier and threshold table are shared
// read-only; the table can be replaced atomically at any time.
type Engine struct {
	classifier model.Classifier
	thresholds atomic.Pointer[calibration.Table]
	hierarchy  *gates.Hierarchy
	dependence *dependence.Calculator
	predicates calibration.Predicates
	specs      []calibration.ThresholdSpec
	recorder   Recorder
	workers    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithHierarchy replaces the default gate hierarchy.
func WithHierarchy(h *gates.Hierarchy) Option {
	return func(e *Engine) { e.hierarchy = h }
}

// WithDependence replaces the default dependence configuration.
func WithDependence(cfg dependence.Config) Option {
	return func(e *Engine) { e.dependence = dependence.New(cfg) }
}

// WithPredicates sets the minimum-sample predicates used by gates and calibration.
func WithPredicates(p calibration.Predicates) Option {
	return func(e *Engine) { e.predicates = p.Clone() }
}

// WithSpecs sets the threshold specs used by Calibrate.
func WithSpecs(specs []calibration.ThresholdSpec) Option {
	return func(e *Engine) { e.specs = append([]calibration.ThresholdSpec(nil), specs...) }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithWorkers bounds batch parallelism.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New builds an engine. table may be nil when the caller intends to
// calibrate before predicting.
func New(classifier model.Classifier, table *calibration.Table, opts ...Option) *Engine {
	e := &Engine{
		classifier: classifier,
		hierarchy:  gates.Default(gates.DefaultConfig()),
		dependence: dependence.New(dependence.DefaultConfig()),
		predicates: calibration.DefaultPredicates(),
		specs:      calibration.DefaultSpecs(),
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if table != nil {
		if err := e.SwapThresholds(table); err != nil {
			log.Error().Err(err).Msg("Threshold table rejected")
		}
	}
	return e
}

// Thresholds returns the installed table, or nil.
func (e *Engine) Thresholds() *calibration.Table {
	return e.thresholds.Load()
}

// SwapThresholds installs t. In-flight predictions keep the table they
// started with. A table missing any configured threshold, or stamped with a
// model version other than the classifier's, is rejected and the installed
// table is kept.
func (e *Engine) SwapThresholds(t *calibration.Table) error {
	if t == nil {
		return ErrNoThresholds
	}
	if missing := t.Missing(e.specs); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteThresholds, strings.Join(missing, ", "))
	}
	if mv := e.modelVersion(); mv != "" && t.ModelVersion() != "" && t.ModelVersion() != mv {
		return fmt.Errorf("%w: table has %s, classifier is %s", ErrStaleThresholds, t.ModelVersion(), mv)
	}

	prev := e.thresholds.Swap(t)
	ev := log.Info().Str("version", t.Version()).Bool("degraded", t.Degraded())
	if prev != nil {
		ev = ev.Str("previous", prev.Version())
	}
	ev.Msg("Threshold table installed")
	if t.Degraded() {
		log.Warn().Str("version", t.Version()).Msg("Running on degraded fallback thresholds")
	}
	if e.recorder != nil {
		e.recorder.ObserveThresholds(t)
	}
	return nil
}

func (e *Engine) modelVersion() string {
	if m, ok := e.classifier.(interface{ Version() string }); ok {
		return m.Version()
	}
	return ""
}

// Predicates returns a copy of the engine's minimum-sample predicates.
func (e *Engine) Predicates() calibration.Predicates {
	return e.predicates.Clone()
}

// Predict projects base at targetUsage and classifies the projection.
func (e *Engine) Predict(base features.Vector, targetUsage float64, prior *features.Vector) (Result, error) {
	table := e.thresholds.Load()
	if table == nil {
		return Result{}, ErrNoThresholds
	}

	cond, err := assembler.Assemble(base, targetUsage, prior)
	if err != nil {
		return Result{}, err
	}
	if err := assembler.Verify(cond); err != nil {
		panic(fmt.Sprintf("assembler produced an inconsistent vector: %v", err))
	}

	raw, err := e.classifier.PredictProba(cond)
	if err != nil {
		return Result{}, fmt.Errorf("classifier failed: %w", err)
	}
	if err := raw.Validate(); err != nil {
		return Result{}, fmt.Errorf("classifier returned an invalid distribution: %w", err)
	}

	dep := e.dependence.Compute(cond)
	outcome := e.hierarchy.Evaluate(gates.Input{
		Features:   cond,
		Raw:        raw,
		Thresholds: table,
		Predicates: e.predicates,
		Dependence: dep,
	})

	splits, err := quadrant.SplitsFrom(table)
	if err != nil {
		return Result{}, err
	}

	r := Result{
		TargetUsage:      targetUsage,
		PerformanceScore: outcome.StarProbability,
		PerformanceLabel: outcome.Label,
		Dependence:       dep,
		Quadrant:         quadrant.Categorize(outcome.StarProbability, dep, splits),
		Gates:            outcome,
		ThresholdVersion: table.Version(),
		Degraded:         table.Degraded(),
		Features:         cond,
	}
	r.ModelVersion = e.modelVersion()
	if m, ok := e.classifier.(interface {
		Imputed(features.Vector) []string
	}); ok {
		r.ImputedFeatures = m.Imputed(cond)
	}
	if m, ok := e.classifier.(interface{ MissingPolicy() string }); ok {
		r.MissingPolicy = m.MissingPolicy()
	}

	if e.recorder != nil {
		e.recorder.ObservePrediction(r)
	}
	return r, nil
}

// PredictBatch runs reqs in parallel. Results are returned in input order;
// the first error cancels the remaining work.
func (e *Engine) PredictBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.Predict(req.Base, req.Usage, req.Prior)
			if err != nil {
				if req.ID != "" {
					return fmt.Errorf("%s: %w", req.ID, err)
				}
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SweepPoint is one usage level of a sweep.
type SweepPoint struct {
	Usage            float64           `json:"usage"`
	RawStar          float64           `json:"raw_star_probability"`
	Star             float64           `json:"star_probability"`
	Label            model.Class       `json:"label"`
	Quadrant         quadrant.Quadrant `json:"quadrant"`
	LeaningTo        quadrant.Quadrant `json:"leaning_to,omitempty"`
	Fired            []string          `json:"fired"`
	DataInsufficient bool              `json:"data_insufficient"`
	ThresholdVersion string            `json:"threshold_version"`
	Degraded         bool              `json:"degraded_thresholds"`
}

// Sweep projects the same entity across usage levels.
func (e *Engine) Sweep(ctx context.Context, base features.Vector, prior *features.Vector, levels []float64) ([]SweepPoint, error) {
	reqs := make([]Request, len(levels))
	for i, u := range levels {
		reqs[i] = Request{ID: fmt.Sprintf("usage %.3f", u), Base: base, Usage: u, Prior: prior}
	}
	results, err := e.PredictBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	points := make([]SweepPoint, len(results))
	for i, r := range results {
		points[i] = SweepPoint{
			Usage:            r.TargetUsage,
			RawStar:          r.Gates.RawStarProbability,
			Star:             r.PerformanceScore,
			Label:            r.PerformanceLabel,
			Quadrant:         r.Quadrant.Quadrant,
			LeaningTo:        r.Quadrant.LeaningTo,
			Fired:            r.Gates.Fired,
			DataInsufficient: r.Gates.DataInsufficient,
			ThresholdVersion: r.ThresholdVersion,
			Degraded:         r.Degraded,
		}
	}
	return points, nil
}

// Calibrate computes a fresh table from rows without installing it. The
// table is stamped with the classifier version, since the performance
// splits are derived from its output.
func (e *Engine) Calibrate(rows []features.Row) (*calibration.Table, error) {
	t, err := calibration.Calibrate(rows, e.predicates, e.specs, e.derivers())
	if err != nil {
		return nil, err
	}
	return t.ForModel(e.modelVersion()), nil
}

// Recalibrate computes a table from rows and installs it.
func (e *Engine) Recalibrate(rows []features.Row) (*calibration.Table, error) {
	t, err := e.Calibrate(rows)
	if err != nil {
		return nil, err
	}
	if err := e.SwapThresholds(t); err != nil {
		return nil, err
	}
	return t, nil
}

// derivers supply the columns that are computed rather than stored. The
// star probability is the raw classifier output at the row's own usage, so
// the performance split does not depend on the table being calibrated.
func (e *Engine) derivers() map[string]calibration.Deriver {
	return map[string]calibration.Deriver{
		calibration.SourceDependenceScore: func(v features.Vector) (float64, bool) {
			s := e.dependence.Compute(v)
			return s.Value, s.Defined
		},
		calibration.SourceStarProbability: func(v features.Vector) (float64, bool) {
			usage, ok := v.Get(features.Usage)
			if !ok {
				return 0, false
			}
			cond, err := assembler.Assemble(v, usage, nil)
			if err != nil {
				return 0, false
			}
			d, err := e.classifier.PredictProba(cond)
			if err != nil {
				return 0, false
			}
			return d.Star(), true
		},
	}
}
