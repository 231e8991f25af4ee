package gates

import (
	"fmt"
	"strings"

	"usage-projection/internal/calibration"
	"usage-projection/internal/features"
	"usage-projection/internal/model"
)

// Gate names of the default hierarchy.
const (
	GateDataSufficiency          = "data_sufficiency"
	GateClutchCollapse           = "clutch_efficiency_collapse"
	GateSelfCreationCollapse     = "self_creation_collapse"
	GatePressureFragility        = "pressure_fragility"
	GateMultiSignalDecline       = "multi_signal_decline"
	GatePerimeterDependentVolume = "perimeter_dependent_volume"
	GateDependenceInteraction    = "dependence_interaction"
)

// Exemption names.
const (
	ExemptionEliteRimFinishing   = "elite_rim_finishing"
	ExemptionFreeThrowGeneration = "free_throw_generation"
)

// dataSufficiency fires when the critical inputs are too sparse or the
// sample predicates fail. It has no exemption.
type dataSufficiency struct {
	cfg Config
}

func (g *dataSufficiency) Name() string { return GateDataSufficiency }
func (g *dataSufficiency) Tier() Tier   { return TierDataSufficiency }

func (g *dataSufficiency) Evaluate(in Input) Verdict {
	var reasons []string
	coverage := in.Features.Coverage(g.cfg.criticalNames())
	if coverage < g.cfg.MinCoverage {
		reasons = append(reasons, fmt.Sprintf("critical feature coverage %.2f below %.2f", coverage, g.cfg.MinCoverage))
	}
	if failing := in.Predicates.Failing(in.Features, g.cfg.SufficiencyPredicates); len(failing) > 0 {
		reasons = append(reasons, "failing predicates: "+strings.Join(failing, ", "))
	}
	if len(reasons) == 0 {
		return Verdict{Status: StatusPassed, Note: fmt.Sprintf("critical feature coverage %.2f", coverage)}
	}
	return Verdict{Status: StatusFired, Cap: g.cfg.DataCeiling, Note: strings.Join(reasons, "; ")}
}

func clutchCollapse(cfg Config) Gate {
	return &condition{
		name:     GateClutchCollapse,
		tier:     TierCatastrophic,
		ceiling:  cfg.CatastrophicCeiling,
		requires: []string{calibration.PredicateClutch},
		when: func(l *lookup) (bool, string) {
			d := l.feature(features.ClutchTSDelta)
			t := l.threshold(calibration.ClutchCollapse)
			return d <= t, fmt.Sprintf("clutch ts delta %.3f vs collapse %.3f", d, t)
		},
		exemption: eliteRimFinishing(),
	}
}

func eliteRimFinishing() *exemption {
	return &exemption{
		name:     ExemptionEliteRimFinishing,
		requires: []string{calibration.PredicateRim},
		when: func(l *lookup) (bool, string) {
			fg := l.feature(features.RimFGPct)
			app := l.feature(features.RimAppetite)
			fgMin := l.threshold(calibration.EliteRimFG)
			appMin := l.threshold(calibration.RimAppetiteElite)
			ok := fg >= fgMin && app >= appMin
			return ok, fmt.Sprintf("%s: rim fg %.3f (min %.3f), rim appetite %.3f (min %.3f)",
				ExemptionEliteRimFinishing, fg, fgMin, app, appMin)
		},
	}
}

func selfCreationCollapse(cfg Config) Gate {
	return &condition{
		name:     GateSelfCreationCollapse,
		tier:     TierCatastrophic,
		ceiling:  cfg.CatastrophicCeiling,
		forced:   classPtr(model.Victim),
		requires: []string{calibration.PredicateShooting},
		when: func(l *lookup) (bool, string) {
			u := l.feature(features.Usage)
			tax := l.feature(features.CreationTax)
			t := l.threshold(calibration.CreationTaxCollapse)
			return u >= cfg.HighUsage && tax <= t,
				fmt.Sprintf("usage %.3f, creation tax %.3f vs collapse %.3f", u, tax, t)
		},
		exemption: freeThrowGeneration(),
	}
}

func freeThrowGeneration() *exemption {
	return &exemption{
		name: ExemptionFreeThrowGeneration,
		when: func(l *lookup) (bool, string) {
			ft := l.feature(features.FTRate)
			t := l.threshold(calibration.FTRateElite)
			return ft >= t, fmt.Sprintf("%s: ft rate %.3f (min %.3f)", ExemptionFreeThrowGeneration, ft, t)
		},
	}
}

func pressureFragility(cfg Config) Gate {
	return &condition{
		name:     GatePressureFragility,
		tier:     TierCatastrophic,
		ceiling:  cfg.CatastrophicCeiling,
		requires: []string{calibration.PredicatePressure},
		when: func(l *lookup) (bool, string) {
			r := l.feature(features.PressureResilience)
			t := l.threshold(calibration.PressureCollapse)
			return r <= t, fmt.Sprintf("pressure resilience %.3f vs collapse %.3f", r, t)
		},
	}
}

// signal is one input of the multi-signal decline count.
type signal struct {
	label     string
	feature   features.Name
	threshold string
	above     bool // fires when the feature exceeds the threshold
}

var declineSignals = []signal{
	{"inefficient", features.TSPct, calibration.InefficiencyFloor, false},
	{"low rim pressure", features.RimAppetite, calibration.RimPressureFloor, false},
	{"poor shot quality", features.ShotQualityDelta, calibration.ShotQualityDeltaFloor, false},
	{"heavy creation tax", features.CreationTax, calibration.CreationTaxFloor, false},
	{"turnover prone", features.TOVPct, calibration.TurnoverCeiling, true},
}

// multiSignalDecline counts concurrent weaknesses. Unavailable signals are
// skipped; the gate is not applicable when fewer than the required number
// could be evaluated.
type multiSignalDecline struct {
	cfg Config
}

func (g *multiSignalDecline) Name() string { return GateMultiSignalDecline }
func (g *multiSignalDecline) Tier() Tier   { return TierCompound }

func (g *multiSignalDecline) Evaluate(in Input) Verdict {
	if failing := in.Predicates.Failing(in.Features, []string{calibration.PredicateShooting}); len(failing) > 0 {
		return Verdict{Status: StatusNotApplicable, Note: "insufficient sample: " + strings.Join(failing, ", ")}
	}

	var hits, skipped []string
	evaluated := 0
	for _, s := range declineSignals {
		l := &lookup{in: in}
		x := l.feature(s.feature)
		t := l.threshold(s.threshold)
		if !l.ok() {
			skipped = append(skipped, s.label)
			continue
		}
		evaluated++
		if (s.above && x > t) || (!s.above && x < t) {
			hits = append(hits, s.label)
		}
	}

	if evaluated < g.cfg.MinCompoundSignals {
		return Verdict{
			Status: StatusNotApplicable,
			Note:   fmt.Sprintf("only %d signals available; skipped: %s", evaluated, strings.Join(skipped, ", ")),
		}
	}
	note := fmt.Sprintf("%d of %d signals: %s", len(hits), evaluated, strings.Join(hits, ", "))
	if len(skipped) > 0 {
		note += "; skipped: " + strings.Join(skipped, ", ")
	}
	if len(hits) < g.cfg.MinCompoundSignals {
		return Verdict{Status: StatusPassed, Note: note}
	}
	return Verdict{Status: StatusFired, Cap: g.cfg.CompoundCeiling, Note: note}
}

func perimeterDependentVolume(cfg Config) Gate {
	return &condition{
		name:     GatePerimeterDependentVolume,
		tier:     TierCompound,
		ceiling:  cfg.CompoundCeiling,
		requires: []string{calibration.PredicateShooting},
		when: func(l *lookup) (bool, string) {
			u := l.feature(features.Usage)
			app := l.feature(features.RimAppetite)
			ft := l.feature(features.FTRate)
			appMin := l.threshold(calibration.RimPressureFloor)
			ftMin := l.threshold(calibration.FTRateFloor)
			return u >= cfg.HighUsage && app < appMin && ft < ftMin,
				fmt.Sprintf("usage %.3f, rim appetite %.3f (floor %.3f), ft rate %.3f (floor %.3f)", u, app, appMin, ft, ftMin)
		},
	}
}

// dependenceInteraction caps high-usage profiles whose efficiency leans on
// teammates. An undefined dependence score makes it not applicable.
type dependenceInteraction struct {
	cfg Config
}

func (g *dependenceInteraction) Name() string { return GateDependenceInteraction }
func (g *dependenceInteraction) Tier() Tier   { return TierDependence }

func (g *dependenceInteraction) Evaluate(in Input) Verdict {
	if !in.Dependence.Defined {
		return Verdict{Status: StatusNotApplicable, Note: "dependence score undefined"}
	}
	l := &lookup{in: in}
	u := l.feature(features.Usage)
	t := l.threshold(calibration.DependenceHigh)
	if !l.ok() {
		return Verdict{Status: StatusNotApplicable, Note: l.reason()}
	}
	note := fmt.Sprintf("usage %.3f, dependence %.3f (%s) vs high %.3f", u, in.Dependence.Value, in.Dependence.Coverage, t)
	if u >= g.cfg.HighUsage && in.Dependence.Value >= t {
		return Verdict{Status: StatusFired, Cap: g.cfg.DependenceCeiling, Note: note}
	}
	return Verdict{Status: StatusPassed, Note: note}
}

// DefaultGates builds the stock rule set from cfg, honouring its disabled
// gates and exemptions.
func DefaultGates(cfg Config) []Gate {
	all := []Gate{
		&dataSufficiency{cfg: cfg},
		clutchCollapse(cfg),
		selfCreationCollapse(cfg),
		pressureFragility(cfg),
		&multiSignalDecline{cfg: cfg},
		perimeterDependentVolume(cfg),
		&dependenceInteraction{cfg: cfg},
	}

	out := make([]Gate, 0, len(all))
	for _, g := range all {
		if contains(cfg.DisabledGates, g.Name()) && g.Tier() != TierDataSufficiency {
			continue
		}
		if c, ok := g.(*condition); ok && c.exemption != nil && contains(cfg.DisabledExemptions, c.exemption.name) {
			c.exemption = nil
		}
		out = append(out, g)
	}
	return out
}
