package calibration

import (
	"fmt"
	"sort"

	"usage-projection/internal/features"
)

// Predicate is a minimum-sample-size rule on a count feature.
type Predicate struct {
	Feature string  `yaml:"feature" json:"feature"`
	Min     float64 `yaml:"min" json:"min"`
}

// Predicates holds the named minimum-sample rules. Threshold specs and the
// data-sufficiency gate refer to them by name.
type Predicates map[string]Predicate

// Predicate names used by the default configuration.
const (
	PredicateShooting = "shooting"
	PredicateRotation = "rotation"
	PredicateClutch   = "clutch"
	PredicatePressure = "pressure"
	PredicateRim      = "rim"
)

// DefaultPredicates returns the stock minimum-sample rules.
func DefaultPredicates() Predicates {
	return Predicates{
		PredicateShooting: {Feature: features.FGA.String(), Min: 150},
		PredicateRotation: {Feature: features.GamesPlayed.String(), Min: 15},
		PredicateClutch:   {Feature: features.ClutchMinutes.String(), Min: 30},
		PredicatePressure: {Feature: features.PressureAttempts.String(), Min: 50},
		PredicateRim:      {Feature: features.RimAttempts.String(), Min: 40},
	}
}

// Validate checks that every predicate references a known feature.
func (ps Predicates) Validate() error {
	for name, p := range ps {
		if _, ok := features.Lookup(p.Feature); !ok {
			return fmt.Errorf("%w: predicate %q references unknown feature %q", ErrInvalidSpec, name, p.Feature)
		}
		if p.Min < 0 {
			return fmt.Errorf("%w: predicate %q has negative minimum", ErrInvalidSpec, name)
		}
	}
	return nil
}

// Check evaluates one predicate against v. known is false when the predicate
// feature is missing from v; a missing sample count never satisfies it.
func (p Predicate) Check(v features.Vector) (satisfied, known bool) {
	n, ok := features.Lookup(p.Feature)
	if !ok {
		return false, false
	}
	x, ok := v.Get(n)
	if !ok {
		return false, false
	}
	return x >= p.Min, true
}

// Qualifies reports whether v satisfies every named predicate.
func (ps Predicates) Qualifies(v features.Vector, names []string) (bool, error) {
	for _, name := range names {
		p, ok := ps[name]
		if !ok {
			return false, fmt.Errorf("%w: unknown predicate %q", ErrInvalidSpec, name)
		}
		if ok, _ := p.Check(v); !ok {
			return false, nil
		}
	}
	return true, nil
}

// Failing returns the names of predicates v does not satisfy, sorted.
func (ps Predicates) Failing(v features.Vector, names []string) []string {
	var out []string
	for _, name := range names {
		p, ok := ps[name]
		if !ok {
			out = append(out, name)
			continue
		}
		if ok, _ := p.Check(v); !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (ps Predicates) Clone() Predicates {
	out := make(Predicates, len(ps))
	for k, v := range ps {
		out[k] = v
	}
	return out
}
