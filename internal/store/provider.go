package store

import (
	"context"
	"errors"

	"usage-projection/internal/features"
)

// ErrNotFound is returned when no row exists for an (entity, season) pair.
var ErrNotFound = errors.New("no feature row found")

// HistoricalProvider supplies the calibration population.
type HistoricalProvider interface {
	Population(ctx context.Context) ([]features.Row, error)
}

// EntityProvider supplies the feature vector of a single player-season and
// the season that precedes it.
type EntityProvider interface {
	Features(ctx context.Context, entityID, season string) (features.Vector, error)
	Prior(ctx context.Context, entityID, season string) (*features.Vector, error)
}

// Provider is implemented by both stores.
type Provider interface {
	HistoricalProvider
	EntityProvider
}
