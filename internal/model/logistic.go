package model

import (
	"errors"
	"fmt"
	"math"

	"usage-projection/internal/artifact"
	"usage-projection/internal/features"
)

// MissingPolicyMedian is the missing-value policy of Logistic: absent
// features are replaced by the training-population median.
const MissingPolicyMedian = "median_imputation"

// Artifact is the persisted form of a trained multinomial logistic model.
type Artifact struct {
	Version  string   `json:"version"`
	Classes  []string `json:"classes"`
	Features []string `json:"features"`
	// Means and Scales standardise each input: (x - mean) / scale.
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Medians []float64 `json:"medians"`
	// Coefficients is indexed [class][feature].
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// Logistic is a softmax classifier over standardised features. It is
// immutable after construction and safe for concurrent use.
type Logistic struct {
	version   string
	classes   []Class
	inputs    []features.Name
	means     []float64
	scales    []float64
	medians   []float64
	coef      [][]float64
	intercept []float64
}

// NewLogistic checks the artifact's shape and builds the model.
func NewLogistic(a Artifact) (*Logistic, error) {
	nf := len(a.Features)
	nc := len(a.Classes)
	if nc != NumClasses {
		return nil, fmt.Errorf("model has %d classes, want %d", nc, NumClasses)
	}
	if nf == 0 {
		return nil, errors.New("model has no features")
	}
	if len(a.Means) != nf || len(a.Scales) != nf || len(a.Medians) != nf {
		return nil, fmt.Errorf("standardisation vectors must have %d entries", nf)
	}
	if len(a.Coefficients) != nc || len(a.Intercepts) != nc {
		return nil, fmt.Errorf("coefficients and intercepts must have %d rows", nc)
	}

	m := &Logistic{
		version:   a.Version,
		classes:   make([]Class, nc),
		inputs:    make([]features.Name, nf),
		means:     append([]float64(nil), a.Means...),
		scales:    append([]float64(nil), a.Scales...),
		medians:   append([]float64(nil), a.Medians...),
		coef:      make([][]float64, nc),
		intercept: append([]float64(nil), a.Intercepts...),
	}

	seen := make(map[Class]bool, nc)
	for i, name := range a.Classes {
		c, err := ParseClass(name)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate class %q", name)
		}
		seen[c] = true
		m.classes[i] = c

		if len(a.Coefficients[i]) != nf {
			return nil, fmt.Errorf("coefficient row %q has %d entries, want %d", name, len(a.Coefficients[i]), nf)
		}
		m.coef[i] = append([]float64(nil), a.Coefficients[i]...)
	}

	for i, key := range a.Features {
		n, ok := features.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("model uses unknown feature %q", key)
		}
		if m.scales[i] == 0 {
			return nil, fmt.Errorf("feature %q has zero scale", key)
		}
		m.inputs[i] = n
	}
	return m, nil
}

// Load reads and validates a model artifact.
func Load(path string) (*Logistic, error) {
	a, err := artifact.ReadFile[Artifact](path)
	if err != nil {
		return nil, err
	}
	return NewLogistic(a)
}

// Save writes a model artifact.
func Save(path string, a Artifact) error {
	if _, err := NewLogistic(a); err != nil {
		return err
	}
	return artifact.WriteFile(path, a)
}

// Version identifies the trained artifact.
func (m *Logistic) Version() string { return m.version }

// MissingPolicy names how absent features are filled.
func (m *Logistic) MissingPolicy() string { return MissingPolicyMedian }

// Inputs returns the features the model consumes, in artifact order.
func (m *Logistic) Inputs() []features.Name {
	return append([]features.Name(nil), m.inputs...)
}

// Imputed lists the model inputs absent from v, which PredictProba fills
// with the training median.
func (m *Logistic) Imputed(v features.Vector) []string {
	return features.Keys(v.Missing(m.inputs))
}

// PredictProba returns the softmax distribution for v.
func (m *Logistic) PredictProba(v features.Vector) (Distribution, error) {
	z := make([]float64, len(m.inputs))
	for i, n := range m.inputs {
		x, ok := v.Get(n)
		if !ok {
			x = m.medians[i]
		}
		z[i] = (x - m.means[i]) / m.scales[i]
	}

	logits := make([]float64, len(m.classes))
	maxLogit := math.Inf(-1)
	for k := range m.classes {
		s := m.intercept[k]
		for i, zi := range z {
			s += m.coef[k][i] * zi
		}
		logits[k] = s
		maxLogit = math.Max(maxLogit, s)
	}

	var d Distribution
	sum := 0.0
	for k, l := range logits {
		e := math.Exp(l - maxLogit)
		d[m.classes[k]] = e
		sum += e
	}
	for c := range d {
		d[c] /= sum
	}
	return d, nil
}
