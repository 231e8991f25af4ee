package features

import "fmt"

// Row is one entity-observation of the historical population.
type Row struct {
	EntityID string `json:"entity_id"`
	Season   string `json:"season"`
	Features Vector `json:"features"`
}

// Key identifies the row within a population.
func (r Row) Key() string {
	return fmt.Sprintf("%s|%s", r.EntityID, r.Season)
}
