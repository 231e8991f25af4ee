package gates

import (
	"fmt"
	"strings"

	"usage-projection/internal/calibration"
	"usage-projection/internal/dependence"
	"usage-projection/internal/features"
	"usage-projection/internal/model"
)

// Tier is a gate's precedence level. Lower tiers are evaluated first.
type Tier int

const (
	TierDataSufficiency Tier = iota + 1
	TierCatastrophic
	TierCompound
	TierDependence
)

func (t Tier) String() string {
	switch t {
	case TierDataSufficiency:
		return "data_sufficiency"
	case TierCatastrophic:
		return "catastrophic"
	case TierCompound:
		return "compound"
	case TierDependence:
		return "dependence"
	default:
		return fmt.Sprintf("tier_%d", int(t))
	}
}

// Status is the result of evaluating one gate.
type Status string

const (
	StatusPassed        Status = "passed"
	StatusFired         Status = "fired"
	StatusExempted      Status = "exempted"
	StatusNotApplicable Status = "not_applicable"
)

// Input is everything a gate may read. Gates must not modify it.
type Input struct {
	Features   features.Vector
	Raw        model.Distribution
	Thresholds *calibration.Table
	Predicates calibration.Predicates
	Dependence dependence.Score
}

// Verdict is a gate's decision. Cap and ForcedLabel are meaningful only
// when Status is StatusFired.
type Verdict struct {
	Status      Status
	Cap         float64
	ForcedLabel *model.Class
	Exemption   string
	Note        string
}

// Gate is one named risk condition.
type Gate interface {
	Name() string
	Tier() Tier
	Evaluate(in Input) Verdict
}

// lookup reads features and thresholds and remembers what was unavailable.
type lookup struct {
	in      Input
	missing []string
}

func (l *lookup) feature(n features.Name) float64 {
	x, ok := l.in.Features.Get(n)
	if !ok {
		l.missing = append(l.missing, n.String())
	}
	return x
}

func (l *lookup) threshold(name string) float64 {
	x, ok := l.in.Thresholds.Get(name)
	if !ok {
		l.missing = append(l.missing, "threshold "+name)
	}
	return x
}

func (l *lookup) ok() bool { return len(l.missing) == 0 }

func (l *lookup) reason() string {
	return "unavailable: " + strings.Join(l.missing, ", ")
}

// condition is the common shape of tiers 2 to 4: a rule that may fire when
// its sample predicates hold, optionally cleared by a narrow exemption.
type condition struct {
	name      string
	tier      Tier
	ceiling   float64
	forced    *model.Class
	requires  []string
	when      func(l *lookup) (bool, string)
	exemption *exemption
}

type exemption struct {
	name     string
	requires []string
	when     func(l *lookup) (bool, string)
}

func (c *condition) Name() string { return c.name }
func (c *condition) Tier() Tier   { return c.tier }

func (c *condition) Evaluate(in Input) Verdict {
	if failing := in.Predicates.Failing(in.Features, c.requires); len(failing) > 0 {
		return Verdict{
			Status: StatusNotApplicable,
			Note:   "insufficient sample: " + strings.Join(failing, ", "),
		}
	}

	l := &lookup{in: in}
	fired, note := c.when(l)
	if !l.ok() {
		return Verdict{Status: StatusNotApplicable, Note: l.reason()}
	}
	if !fired {
		return Verdict{Status: StatusPassed, Note: note}
	}

	if c.exemption != nil {
		if exempt, why := c.exemption.check(in); exempt {
			return Verdict{Status: StatusExempted, Exemption: c.exemption.name, Note: why}
		} else if why != "" {
			note += "; " + why
		}
	}
	return Verdict{Status: StatusFired, Cap: c.ceiling, ForcedLabel: c.forced, Note: note}
}

// check reports whether the exemption clears the gate. Missing evidence
// never grants an exemption.
func (e *exemption) check(in Input) (bool, string) {
	if failing := in.Predicates.Failing(in.Features, e.requires); len(failing) > 0 {
		return false, e.name + " not evaluated, insufficient sample: " + strings.Join(failing, ", ")
	}
	l := &lookup{in: in}
	ok, why := e.when(l)
	if !l.ok() {
		return false, e.name + " not evaluated, " + l.reason()
	}
	return ok, why
}

func classPtr(c model.Class) *model.Class { return &c }
