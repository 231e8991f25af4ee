package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"usage-projection/internal/features"
)

//go:embed sql/ddl.sql
var schema embed.FS

// SQLiteStore persists feature rows in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path not specified")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	ddl, err := schema.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema in %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Feature database ready")
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Import upserts rows in a single transaction.
func (s *SQLiteStore) Import(ctx context.Context, rows []features.Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feature_row (entity_id, season, features, imported_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_id, season) DO UPDATE SET
			features = excluded.features,
			imported_at = excluded.imported_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare import: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		if r.EntityID == "" || r.Season == "" {
			return 0, fmt.Errorf("row without entity or season: %q", r.Key())
		}
		if err := r.Features.Validate(); err != nil {
			return 0, fmt.Errorf("row %s: %w", r.Key(), err)
		}
		b, err := json.Marshal(r.Features)
		if err != nil {
			return 0, fmt.Errorf("row %s: %w", r.Key(), err)
		}
		if _, err := stmt.ExecContext(ctx, r.EntityID, r.Season, string(b), now); err != nil {
			return 0, fmt.Errorf("failed to import row %s: %w", r.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	log.Info().Int("count", len(rows)).Msg("Feature rows imported")
	return len(rows), nil
}

// Population returns every row, ordered by entity then season.
func (s *SQLiteStore) Population(ctx context.Context) ([]features.Row, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT entity_id, season, features FROM feature_row ORDER BY entity_id, season`)
	if err != nil {
		return nil, fmt.Errorf("failed to query population: %w", err)
	}
	defer rs.Close()

	var out []features.Row
	for rs.Next() {
		var (
			r   features.Row
			raw string
		)
		if err := rs.Scan(&r.EntityID, &r.Season, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Features); err != nil {
			log.Warn().Err(err).Str("row", r.Key()).Msg("Skipping undecodable feature row")
			continue
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

// Features returns the stored vector for one player-season.
func (s *SQLiteStore) Features(ctx context.Context, entityID, season string) (features.Vector, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT features FROM feature_row WHERE entity_id = ? AND season = ?`,
		entityID, season).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return features.Vector{}, fmt.Errorf("%w: %s %s", ErrNotFound, entityID, season)
	}
	if err != nil {
		return features.Vector{}, fmt.Errorf("failed to query features: %w", err)
	}
	var v features.Vector
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return features.Vector{}, fmt.Errorf("row %s|%s: %w", entityID, season, err)
	}
	return v, nil
}

// Prior returns the latest season before season, or nil when there is none.
func (s *SQLiteStore) Prior(ctx context.Context, entityID, season string) (*features.Vector, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT features FROM feature_row WHERE entity_id = ? AND season < ? ORDER BY season DESC LIMIT 1`,
		entityID, season).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prior season: %w", err)
	}
	var v features.Vector
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("prior row of %s: %w", entityID, err)
	}
	return &v, nil
}
