package model

import (
	"encoding/json"
	"fmt"
	"math"

	"usage-projection/internal/features"
)

// Class is an outcome archetype.
type Class int

const (
	King      Class = iota // star-level and resilient
	Bulldozer              // star-level volume, fragile efficiency
	Sniper                 // efficient role player
	Victim                 // fragile role player
	numClasses
)

// NumClasses is the number of archetypes the classifier emits.
const NumClasses = int(numClasses)

var classNames = [numClasses]string{"king", "bulldozer", "sniper", "victim"}

// Priority orders classes from most to least conservative. It breaks argmax
// ties and decides between competing forced labels.
var Priority = [numClasses]Class{Victim, Sniper, Bulldozer, King}

func (c Class) String() string {
	if c < 0 || c >= numClasses {
		return "unknown"
	}
	return classNames[c]
}

// Star reports whether c counts toward the star-level probability.
func (c Class) Star() bool {
	return c == King || c == Bulldozer
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClass resolves a class name.
func ParseClass(s string) (Class, error) {
	for i, n := range classNames {
		if n == s {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown class %q", s)
}

// Classes returns every class in index order.
func Classes() []Class {
	out := make([]Class, NumClasses)
	for i := range out {
		out[i] = Class(i)
	}
	return out
}

// Distribution holds one probability per class.
type Distribution [numClasses]float64

// Get returns the probability of c.
func (d Distribution) Get(c Class) float64 {
	return d[c]
}

// Star is the aggregate star-level probability.
func (d Distribution) Star() float64 {
	return d[King] + d[Bulldozer]
}

// Argmax returns the most likely class; ties go to the earlier class in Priority.
func (d Distribution) Argmax() Class {
	best := Priority[0]
	for _, c := range Priority[1:] {
		if d[c] > d[best] {
			best = c
		}
	}
	return best
}

// Validate checks that d is a probability distribution.
func (d Distribution) Validate() error {
	sum := 0.0
	for c, p := range d {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("probability of %s is %v", Class(c), p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("probabilities sum to %v", sum)
	}
	return nil
}

// Map returns the distribution keyed by class name.
func (d Distribution) Map() map[string]float64 {
	m := make(map[string]float64, NumClasses)
	for c, p := range d {
		m[Class(c).String()] = p
	}
	return m
}

// MarshalJSON writes the distribution as an object keyed by class name.
func (d Distribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// Classifier is the trained statistical core. Implementations must be safe
// for concurrent use and must not retain v.
type Classifier interface {
	PredictProba(v features.Vector) (Distribution, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(v features.Vector) (Distribution, error)

// PredictProba calls f(v).
func (f ClassifierFunc) PredictProba(v features.Vector) (Distribution, error) {
	return f(v)
}
