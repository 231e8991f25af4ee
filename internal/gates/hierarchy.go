package gates

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"usage-projection/internal/model"
)

// Record is one line of the audit trail.
type Record struct {
	Gate      string   `json:"gate"`
	Tier      string   `json:"tier"`
	Status    Status   `json:"status"`
	Cap       *float64 `json:"cap,omitempty"`
	Forced    string   `json:"forced_label,omitempty"`
	Exemption string   `json:"exemption,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// AppliedExemption names a gate that fired but was cleared.
type AppliedExemption struct {
	Gate      string `json:"gate"`
	Exemption string `json:"exemption"`
	Reason    string `json:"reason"`
}

// Outcome is the reduced result of the whole hierarchy.
type Outcome struct {
	RawStarProbability float64            `json:"raw_star_probability"`
	StarProbability    float64            `json:"star_probability"`
	Raw                model.Distribution `json:"raw_distribution"`
	Adjusted           model.Distribution `json:"adjusted_distribution"`
	Label              model.Class        `json:"label"`
	LabelForced        bool               `json:"label_forced"`
	DataInsufficient   bool               `json:"data_insufficient"`
	Fired              []string           `json:"fired"`
	Exemptions         []AppliedExemption `json:"exemptions"`
	Trail              []Record           `json:"trail"`
}

// Hierarchy evaluates gates in tier order and folds their caps. A cap can
// only tighten the running ceiling.
type Hierarchy struct {
	gates []Gate
}

// New orders gates by tier, keeping insertion order within a tier.
func New(gates ...Gate) (*Hierarchy, error) {
	seen := make(map[string]bool, len(gates))
	for _, g := range gates {
		if seen[g.Name()] {
			return nil, fmt.Errorf("duplicate gate %q", g.Name())
		}
		seen[g.Name()] = true
	}
	ordered := append([]Gate(nil), gates...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier() < ordered[j].Tier() })
	return &Hierarchy{gates: ordered}, nil
}

// Default builds the stock hierarchy. It panics if the stock gates do not
// form a valid hierarchy.
func Default(cfg Config) *Hierarchy {
	h, err := New(DefaultGates(cfg)...)
	if err != nil {
		panic(fmt.Sprintf("default gate hierarchy: %v", err))
	}
	return h
}

// Gates lists gate names in evaluation order.
func (h *Hierarchy) Gates() []string {
	out := make([]string, len(h.gates))
	for i, g := range h.gates {
		out[i] = g.Name()
	}
	return out
}

// Evaluate runs every gate against in and reduces the verdicts.
func (h *Hierarchy) Evaluate(in Input) Outcome {
	raw := in.Raw.Star()
	out := Outcome{
		RawStarProbability: raw,
		Raw:                in.Raw,
		Fired:              []string{},
		Exemptions:         []AppliedExemption{},
		Trail:              make([]Record, 0, len(h.gates)),
	}

	ceiling := 1.0
	var forced []model.Class
	for _, g := range h.gates {
		v := g.Evaluate(in)
		rec := Record{Gate: g.Name(), Tier: g.Tier().String(), Status: v.Status, Note: v.Note}

		switch v.Status {
		case StatusFired:
			c := v.Cap
			rec.Cap = &c
			ceiling = math.Min(ceiling, c)
			out.Fired = append(out.Fired, g.Name())
			if g.Tier() == TierDataSufficiency {
				out.DataInsufficient = true
			}
			if v.ForcedLabel != nil {
				rec.Forced = v.ForcedLabel.String()
				forced = append(forced, *v.ForcedLabel)
			}
			log.Debug().Str("gate", g.Name()).Float64("cap", c).Str("note", v.Note).Msg("Gate fired")
		case StatusExempted:
			rec.Exemption = v.Exemption
			out.Exemptions = append(out.Exemptions, AppliedExemption{Gate: g.Name(), Exemption: v.Exemption, Reason: v.Note})
			log.Debug().Str("gate", g.Name()).Str("exemption", v.Exemption).Msg("Gate exempted")
		}
		out.Trail = append(out.Trail, rec)
	}

	out.StarProbability = math.Min(raw, ceiling)
	out.Adjusted = Cap(in.Raw, out.StarProbability)
	if len(forced) > 0 {
		out.Label = mostConservative(forced)
		out.LabelForced = true
	} else {
		out.Label = out.Adjusted.Argmax()
	}
	return out
}

// Cap scales the star classes of d down so their mass is at most star and
// hands the removed mass to the non-star classes in proportion to their
// share. If the non-star classes hold nothing it is split evenly.
func Cap(d model.Distribution, star float64) model.Distribution {
	current := d.Star()
	if current <= star || current == 0 {
		return d
	}
	if star < 0 {
		star = 0
	}

	scale := star / current
	removed := current - star
	out := d
	nonStar := 0.0
	var others []model.Class
	for _, c := range model.Classes() {
		if c.Star() {
			out[c] = d[c] * scale
			continue
		}
		others = append(others, c)
		nonStar += d[c]
	}
	for _, c := range others {
		if nonStar > 0 {
			out[c] = d[c] + removed*d[c]/nonStar
		} else {
			out[c] = removed / float64(len(others))
		}
	}
	return out
}

func mostConservative(classes []model.Class) model.Class {
	for _, p := range model.Priority {
		for _, c := range classes {
			if c == p {
				return c
			}
		}
	}
	return classes[0]
}
