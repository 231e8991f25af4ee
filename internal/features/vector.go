package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalid is matched by every malformed-vector error.
var ErrInvalid = errors.New("invalid feature vector")

// ValidationError describes a single malformed feature.
type ValidationError struct {
	Feature string
	Value   float64
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feature %s=%v: %s", e.Feature, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Vector is a fixed-slot feature record. A slot is either present with a
// finite value or missing; the zero Vector has every slot missing.
// Vectors are values: With and Without return modified copies.
type Vector struct {
	values  [numNames]float64
	present [numNames]bool
}

// Get returns the value of n and whether it is present.
func (v Vector) Get(n Name) (float64, bool) {
	if !v.present[n] {
		return 0, false
	}
	return v.values[n], true
}

// Has reports whether n is present.
func (v Vector) Has(n Name) bool {
	return v.present[n]
}

// With returns a copy of v with n set to x.
func (v Vector) With(n Name, x float64) Vector {
	v.values[n] = x
	v.present[n] = true
	return v
}

// Without returns a copy of v with n marked missing.
func (v Vector) Without(n Name) Vector {
	v.values[n] = 0
	v.present[n] = false
	return v
}

// Missing returns the subset of names absent from v.
func (v Vector) Missing(names []Name) []Name {
	var out []Name
	for _, n := range names {
		if !v.present[n] {
			out = append(out, n)
		}
	}
	return out
}

// Coverage is the share of names present in v. An empty list has full coverage.
func (v Vector) Coverage(names []Name) float64 {
	if len(names) == 0 {
		return 1
	}
	return float64(len(names)-len(v.Missing(names))) / float64(len(names))
}

// Len returns the number of present slots.
func (v Vector) Len() int {
	c := 0
	for _, p := range v.present {
		if p {
			c++
		}
	}
	return c
}

// Validate checks every present value against its feature kind.
func (v Vector) Validate() error {
	var errs []error
	for i := range v.values {
		if !v.present[i] {
			continue
		}
		if err := check(Name(i), v.values[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func check(n Name, x float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return &ValidationError{Feature: n.String(), Value: x, Reason: "not a finite number"}
	}
	switch registry[n].Kind {
	case KindFraction:
		if x < 0 || x > 1 {
			return &ValidationError{Feature: n.String(), Value: x, Reason: "fraction outside [0,1]"}
		}
	case KindNonNegative, KindCount:
		if x < 0 {
			return &ValidationError{Feature: n.String(), Value: x, Reason: "must not be negative"}
		}
	}
	return nil
}

// FromMap builds a Vector from wire keys. Unknown keys are rejected.
func FromMap(m map[string]float64) (Vector, error) {
	var v Vector
	for k, x := range m {
		n, ok := Lookup(k)
		if !ok {
			return Vector{}, &ValidationError{Feature: k, Value: x, Reason: "unknown feature"}
		}
		v = v.With(n, x)
	}
	return v, nil
}

// Map returns the present features keyed by wire key.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, v.Len())
	for i := range v.values {
		if v.present[i] {
			m[registry[i].Key] = v.values[i]
		}
	}
	return m
}

// MarshalJSON writes present features as an object; missing ones are omitted.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON accepts an object of wire keys. A null value marks the
// feature missing.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var out Vector
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, ok := Lookup(k)
		if !ok {
			return &ValidationError{Feature: k, Reason: "unknown feature"}
		}
		if raw[k] != nil {
			out = out.With(n, *raw[k])
		}
	}
	*v = out
	return nil
}
