// Package assembler rebuilds a feature vector as it would look if the entity
// operated at a different usage level. It is the only place derived
// (usage- and age-interacted) features are written.
package assembler

import (
	"errors"
	"fmt"
	"math"

	"usage-projection/internal/features"
)

// Valid usage range is (MinUsage, MaxUsage].
const (
	MinUsage = 0.0
	MaxUsage = 0.45
)

// consistencyTolerance absorbs float rounding in persisted vectors.
const consistencyTolerance = 1e-9

// ErrInconsistent marks a derived feature that disagrees with its factors.
var ErrInconsistent = errors.New("inconsistent derived feature")

// ValidationError is returned for caller-supplied inputs the assembler refuses.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == features.ErrInvalid
}

// ValidateUsage rejects usage levels outside (0, 0.45]. Out-of-range values
// are never clamped.
func ValidateUsage(usage float64) error {
	if math.IsNaN(usage) || math.IsInf(usage, 0) {
		return &ValidationError{Field: "target usage", Value: usage, Reason: "not a finite number"}
	}
	if usage <= MinUsage || usage > MaxUsage {
		return &ValidationError{
			Field:  "target usage",
			Value:  usage,
			Reason: fmt.Sprintf("must be in (%.2f, %.2f]", MinUsage, MaxUsage),
		}
	}
	return nil
}

// Assemble returns base conditioned on targetUsage. Observed derived values
// in base are discarded and recomputed, since they encode the observed usage.
// When prior is non-nil its usage and efficiency replace the prior_* slots
// of base. Missing factors leave the derived slot missing.
func Assemble(base features.Vector, targetUsage float64, prior *features.Vector) (features.Vector, error) {
	if err := ValidateUsage(targetUsage); err != nil {
		return features.Vector{}, err
	}
	if err := base.Validate(); err != nil {
		return features.Vector{}, err
	}
	if prior != nil {
		if err := prior.Validate(); err != nil {
			return features.Vector{}, fmt.Errorf("prior season: %w", err)
		}
	}

	out := base
	for _, n := range features.Names() {
		if n.Spec().Derived {
			out = out.Without(n)
		}
	}
	out = out.With(features.Usage, targetUsage)

	if prior != nil {
		out = copySlot(out, *prior, features.Usage, features.PriorUsage)
		out = copySlot(out, *prior, features.TSPct, features.PriorTSPct)
	}

	out = delta(out, features.TSYoYDelta, features.TSPct, features.PriorTSPct)
	out = delta(out, features.UsageYoYDelta, features.Usage, features.PriorUsage)

	for _, in := range features.UsageInteractions {
		out = product(out, in)
	}
	for _, in := range features.AgeInteractions {
		out = product(out, in)
	}
	return out, nil
}

// copySlot writes src[from] into dst[to], clearing dst[to] when src lacks it.
func copySlot(dst, src features.Vector, from, to features.Name) features.Vector {
	if x, ok := src.Get(from); ok {
		return dst.With(to, x)
	}
	return dst.Without(to)
}

func delta(v features.Vector, out, current, prior features.Name) features.Vector {
	c, ok1 := v.Get(current)
	p, ok2 := v.Get(prior)
	if !ok1 || !ok2 {
		return v.Without(out)
	}
	return v.With(out, c-p)
}

func product(v features.Vector, in features.Interaction) features.Vector {
	f, ok1 := v.Get(in.Factor)
	b, ok2 := v.Get(in.Base)
	if !ok1 || !ok2 {
		return v.Without(in.Name)
	}
	return v.With(in.Name, f*b)
}

// Verify checks that every derived slot agrees with its factors: products
// equal factor x base, deltas equal current - prior, and a derived slot is
// present exactly when its inputs are.
func Verify(v features.Vector) error {
	check := func(name features.Name, want float64, ok bool) error {
		got, present := v.Get(name)
		switch {
		case present != ok:
			return fmt.Errorf("%w: %s present=%v, inputs present=%v", ErrInconsistent, name, present, ok)
		case ok && math.Abs(got-want) > consistencyTolerance:
			return fmt.Errorf("%w: %s=%v, expected %v", ErrInconsistent, name, got, want)
		}
		return nil
	}

	c, ok1 := v.Get(features.TSPct)
	p, ok2 := v.Get(features.PriorTSPct)
	if err := check(features.TSYoYDelta, c-p, ok1 && ok2); err != nil {
		return err
	}
	c, ok1 = v.Get(features.Usage)
	p, ok2 = v.Get(features.PriorUsage)
	if err := check(features.UsageYoYDelta, c-p, ok1 && ok2); err != nil {
		return err
	}

	interactions := append(append([]features.Interaction{}, features.UsageInteractions...), features.AgeInteractions...)
	for _, in := range interactions {
		f, ok1 := v.Get(in.Factor)
		b, ok2 := v.Get(in.Base)
		if err := check(in.Name, f*b, ok1 && ok2); err != nil {
			return err
		}
	}
	return nil
}
