package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"usage-projection/internal/calibration"
	"usage-projection/internal/config"
	"usage-projection/internal/engine"
	"usage-projection/internal/gates"
	"usage-projection/internal/metrics"
	"usage-projection/internal/model"
	"usage-projection/internal/policy"
	"usage-projection/internal/store"
)

// app is everything a command needs to run projections.
type app struct {
	cfg      *config.AppConfig
	policy   *policy.Policy
	engine   *engine.Engine
	provider store.Provider
	metrics  *metrics.Recorder
	closers  []func() error
}

// bootstrap loads the policy, model and feature store and builds an engine
// without a threshold table.
func bootstrap(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	classifier, err := model.Load(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	log.Info().Str("path", cfg.ModelPath).Str("version", classifier.Version()).Msg("Model loaded")

	a := &app{cfg: cfg, policy: pol, metrics: metrics.NewRecorder()}
	if err := a.openProvider(ctx); err != nil {
		return nil, err
	}

	hierarchy, err := gates.New(gates.DefaultGates(pol.Gates)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine.New(classifier, nil,
		engine.WithHierarchy(hierarchy),
		engine.WithDependence(pol.Dependence),
		engine.WithPredicates(pol.Predicates),
		engine.WithSpecs(pol.Thresholds),
		engine.WithRecorder(a.metrics),
		engine.WithWorkers(cfg.Workers),
	)
	return a, nil
}

// openProvider prefers the SQLite database when one is configured.
func (a *app) openProvider(ctx context.Context) error {
	if a.cfg.DatabasePath != "" {
		db, err := store.OpenSQLite(ctx, a.cfg.DatabasePath)
		if err != nil {
			return err
		}
		a.provider = db
		a.closers = append(a.closers, db.Close)
		log.Info().Str("path", a.cfg.DatabasePath).Msg("Using SQLite feature store")
		return nil
	}

	ps := store.NewPopulationStore()
	if err := ps.Load(a.cfg.PopulationPath); err != nil {
		return err
	}
	a.provider = ps
	log.Info().Str("path", a.cfg.PopulationPath).Int("rows", ps.Count()).Msg("Using JSONL feature store")
	return nil
}

// installThresholds installs the cached table, or calibrates a new one from
// the store, or falls back to the degraded literal table when allowed. A
// cached table that is incomplete or stamped for another model is replaced.
func (a *app) installThresholds(ctx context.Context) error {
	t, err := calibration.Load(a.cfg.ThresholdsPath)
	if err == nil {
		if err = a.engine.SwapThresholds(t); err == nil {
			return nil
		}
		log.Warn().Err(err).Str("path", a.cfg.ThresholdsPath).Msg("Cached threshold table rejected, recalibrating")
	} else {
		log.Debug().Err(err).Str("path", a.cfg.ThresholdsPath).Msg("No usable cached threshold table")
	}

	t, err = a.calibrate(ctx)
	if err == nil {
		err = a.engine.SwapThresholds(t)
	}
	if err == nil {
		if err := calibration.Save(a.cfg.ThresholdsPath, t); err != nil {
			log.Warn().Err(err).Str("path", a.cfg.ThresholdsPath).Msg("Failed to cache threshold table")
		}
		return nil
	}

	if !a.cfg.AllowDegradedThresholds {
		return fmt.Errorf("no threshold table available (set ALLOW_DEGRADED_THRESHOLDS to start on fallback values): %w", err)
	}
	log.Warn().Err(err).Msg("Calibration failed, starting on fallback thresholds")
	return a.engine.SwapThresholds(calibration.FallbackTable())
}

// calibrate computes a table from the store without installing it.
func (a *app) calibrate(ctx context.Context) (*calibration.Table, error) {
	rows, err := a.provider.Population(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("historical population is empty")
	}
	return a.engine.Calibrate(rows)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}
