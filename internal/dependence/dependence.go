// Package dependence scores how much of an entity's production is
// attributable to external support rather than self-generated creation.
package dependence

import (
	"errors"
	"fmt"

	"usage-projection/internal/features"
	"usage-projection/internal/stats"
)

// Component weights.
const (
	WeightAssisted      = 0.40
	WeightOpen          = 0.35
	WeightSelfGenerated = 0.25
)

// Source records where a component's value came from.
type Source string

const (
	SourcePrimary           Source = "primary"
	SourceProxy             Source = "proxy"
	SourceConservativeProxy Source = "conservative_proxy"
	SourceMissing           Source = "missing"
)

// Coverage summarises the sources of all three components.
type Coverage string

const (
	CoverageFull     Coverage = "full"     // all primary
	CoverageFallback Coverage = "fallback" // all present, at least one via a fallback
	CoveragePartial  Coverage = "partial"  // at least one missing, weights renormalised
	CoverageNone     Coverage = "none"     // nothing available, score undefined
)

// Component is one weighted sub-signal.
type Component struct {
	Name string `json:"name"`
	// Signal is the value entering the formula, already oriented so that
	// higher means more dependent (the self-generated term is 1 - fraction).
	Signal       float64 `json:"signal"`
	Raw          float64 `json:"raw"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Source       Source  `json:"source"`
}

// Score is the dependence result. Value is meaningful only when Defined.
type Score struct {
	Value      float64     `json:"value"`
	Defined    bool        `json:"defined"`
	Coverage   Coverage    `json:"coverage"`
	Components []Component `json:"components"`
}

// Config holds the self-generated fallback chain parameters.
type Config struct {
	// ProxyMinFGA is the attempt volume at which creation_volume_ratio is
	// trusted as a direct proxy for self-created frequency.
	ProxyMinFGA float64 `yaml:"proxy_min_fga"`
	// Bands apply a conservative multiplier to the ratio below ProxyMinFGA,
	// or when attempt volume is unknown. Ordered by ascending MaxFGA.
	Bands []Band `yaml:"bands"`
}

// Band is one volume band of the conservative proxy.
type Band struct {
	MaxFGA     float64 `yaml:"max_fga"`
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultConfig returns the stock fallback chain.
func DefaultConfig() Config {
	return Config{
		ProxyMinFGA: 300,
		Bands: []Band{
			{MaxFGA: 100, Multiplier: 0.60},
			{MaxFGA: 200, Multiplier: 0.75},
			{MaxFGA: 300, Multiplier: 0.90},
		},
	}
}

// Validate checks the fallback chain.
func (c Config) Validate() error {
	if c.ProxyMinFGA <= 0 {
		return fmt.Errorf("dependence proxy_min_fga must be positive, got %v", c.ProxyMinFGA)
	}
	if len(c.Bands) == 0 {
		return errors.New("dependence config needs at least one conservative band")
	}
	prev := 0.0
	for i, b := range c.Bands {
		if b.MaxFGA <= prev {
			return fmt.Errorf("dependence band %d: max_fga %v must exceed %v", i, b.MaxFGA, prev)
		}
		if b.Multiplier <= 0 || b.Multiplier > 1 {
			return fmt.Errorf("dependence band %d: multiplier %v outside (0,1]", i, b.Multiplier)
		}
		prev = b.MaxFGA
	}
	return nil
}

// Calculator computes dependence scores. The zero value is not usable; use New.
type Calculator struct {
	cfg Config
}

// New returns a Calculator with the given fallback configuration.
func New(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute scores v. Components that are unavailable even after their
// fallbacks are dropped and the remaining weights renormalised; when all
// three are unavailable the score is undefined.
func (c *Calculator) Compute(v features.Vector) Score {
	comps := []Component{
		c.assisted(v),
		c.open(v),
		c.selfGenerated(v),
	}

	totalWeight := 0.0
	fallback := false
	missing := 0
	for _, comp := range comps {
		switch comp.Source {
		case SourceMissing:
			missing++
		case SourcePrimary:
			totalWeight += comp.Weight
		default:
			fallback = true
			totalWeight += comp.Weight
		}
	}

	if missing == len(comps) {
		for i := range comps {
			comps[i].Weight = 0
		}
		return Score{Coverage: CoverageNone, Components: comps}
	}

	score := Score{Defined: true, Components: comps}
	switch {
	case missing > 0:
		score.Coverage = CoveragePartial
	case fallback:
		score.Coverage = CoverageFallback
	default:
		score.Coverage = CoverageFull
	}

	for i := range comps {
		if comps[i].Source == SourceMissing {
			comps[i].Weight = 0
			continue
		}
		comps[i].Weight /= totalWeight
		comps[i].Contribution = comps[i].Weight * comps[i].Signal
		score.Value += comps[i].Contribution
	}
	score.Value = stats.Clamp01(score.Value)
	return score
}

func (c *Calculator) assisted(v features.Vector) Component {
	comp := Component{Name: "assisted_production", Weight: WeightAssisted}
	if x, ok := v.Get(features.AssistedFGPct); ok {
		return fill(comp, x, x, SourcePrimary)
	}
	if x, ok := v.Get(features.CatchShootFreq); ok {
		return fill(comp, x, x, SourceProxy)
	}
	comp.Source = SourceMissing
	return comp
}

func (c *Calculator) open(v features.Vector) Component {
	comp := Component{Name: "open_opportunity", Weight: WeightOpen}
	if x, ok := v.Get(features.OpenShotFreq); ok {
		return fill(comp, x, x, SourcePrimary)
	}
	if x, ok := v.Get(features.ContestedShotFreq); ok {
		return fill(comp, x, 1-x, SourceProxy)
	}
	comp.Source = SourceMissing
	return comp
}

func (c *Calculator) selfGenerated(v features.Vector) Component {
	comp := Component{Name: "self_generated_usage", Weight: WeightSelfGenerated}
	if x, ok := v.Get(features.SelfCreatedFreq); ok {
		return fill(comp, x, 1-x, SourcePrimary)
	}

	ratio, ok := v.Get(features.CreationVolumeRatio)
	if !ok {
		comp.Source = SourceMissing
		return comp
	}
	ratio = stats.Clamp01(ratio)

	fga, known := v.Get(features.FGA)
	if known && fga >= c.cfg.ProxyMinFGA {
		return fill(comp, ratio, 1-ratio, SourceProxy)
	}

	// Unknown volume is treated as the lowest band.
	mult := c.multiplier(fga, known)
	est := ratio * mult
	return fill(comp, est, 1-est, SourceConservativeProxy)
}

func (c *Calculator) multiplier(fga float64, known bool) float64 {
	if len(c.cfg.Bands) == 0 {
		return 1
	}
	if !known {
		return c.cfg.Bands[0].Multiplier
	}
	for _, b := range c.cfg.Bands {
		if fga < b.MaxFGA {
			return b.Multiplier
		}
	}
	return c.cfg.Bands[len(c.cfg.Bands)-1].Multiplier
}

func fill(c Component, raw, signal float64, src Source) Component {
	c.Raw = raw
	c.Signal = stats.Clamp01(signal)
	c.Source = src
	return c
}
