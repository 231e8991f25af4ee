package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"usage-projection/internal/features"
)

// PopulationStore keeps feature rows in memory, partitioned by player and
// ordered by season.
type PopulationStore struct {
	mu   sync.RWMutex
	rows map[string][]features.Row
}

// NewPopulationStore creates an empty store.
func NewPopulationStore() *PopulationStore {
	return &PopulationStore{rows: make(map[string][]features.Row)}
}

// Append adds rows. A row for an (entity, season) pair already present
// replaces the stored one. It returns the number of new pairs.
func (s *PopulationStore) Append(rows []features.Row) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	touched := make(map[string]bool)
	for _, r := range rows {
		existing := s.rows[r.EntityID]
		replaced := false
		for i := range existing {
			if existing[i].Season == r.Season {
				existing[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, r)
			added++
		}
		s.rows[r.EntityID] = existing
		touched[r.EntityID] = true
	}

	for id := range touched {
		list := s.rows[id]
		sort.Slice(list, func(i, j int) bool { return list[i].Season < list[j].Season })
	}
	return added
}

// Count returns the number of stored rows.
func (s *PopulationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.rows {
		n += len(list)
	}
	return n
}

// Population returns every row, ordered by entity then season.
func (s *PopulationStore) Population(ctx context.Context) ([]features.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []features.Row
	for _, id := range ids {
		out = append(out, s.rows[id]...)
	}
	return out, nil
}

// Features returns the stored vector for one player-season.
func (s *PopulationStore) Features(ctx context.Context, entityID, season string) (features.Vector, error) {
	if err := ctx.Err(); err != nil {
		return features.Vector{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows[entityID] {
		if r.Season == season {
			return r.Features, nil
		}
	}
	return features.Vector{}, fmt.Errorf("%w: %s %s", ErrNotFound, entityID, season)
}

// Prior returns the latest season before season, or nil when there is none.
func (s *PopulationStore) Prior(ctx context.Context, entityID, season string) (*features.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prior *features.Vector
	for _, r := range s.rows[entityID] {
		if r.Season >= season {
			break
		}
		v := r.Features
		prior = &v
	}
	return prior, nil
}

// Load reads rows from a JSONL file. A missing file is not an error.
func (s *PopulationStore) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open population file: %w", err)
	}
	defer file.Close()

	var rows []features.Row
	skipped := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r features.Row
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			log.Warn().Err(err).Str("path", path).Int("line", line).Msg("Skipping invalid population row")
			skipped++
			continue
		}
		if r.EntityID == "" || r.Season == "" {
			log.Warn().Str("path", path).Int("line", line).Msg("Skipping population row without entity or season")
			skipped++
			continue
		}
		if err := r.Features.Validate(); err != nil {
			log.Warn().Err(err).Str("row", r.Key()).Msg("Skipping malformed population row")
			skipped++
			continue
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading population file: %w", err)
	}

	s.Append(rows)
	log.Info().Str("path", path).Int("count", len(rows)).Int("skipped", skipped).Msg("Loaded population")
	return nil
}

// Save writes every row to a JSONL file, replacing it atomically.
func (s *PopulationStore) Save(path string) error {
	rows, err := s.Population(context.Background())
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp population file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, r := range rows {
		if err := encoder.Encode(r); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode row %s: %w", r.Key(), err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename population file: %w", err)
	}

	log.Info().Str("path", path).Int("count", len(rows)).Msg("Population saved")
	return nil
}
