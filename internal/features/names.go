package features

// Kind describes the admissible value domain of a feature.
type Kind int

const (
	KindFraction    Kind = iota // [0, 1]
	KindNonNegative             // [0, +inf)
	KindSigned                  // any finite value
	KindCount                   // sample counts, [0, +inf)
)

func (k Kind) String() string {
	switch k {
	case KindFraction:
		return "fraction"
	case KindNonNegative:
		return "non_negative"
	case KindSigned:
		return "signed"
	case KindCount:
		return "count"
	default:
		return "unknown"
	}
}

// Name identifies one fixed slot of a Vector.
type Name int

const (
	// Sample-size counters
	GamesPlayed Name = iota
	FGA
	ClutchMinutes
	PressureAttempts
	RimAttempts

	// Allocation and profile
	Age
	Usage

	// Efficiency
	TSPct
	FTRate
	TOVPct
	ASTPct
	RimAppetite
	RimFGPct
	CreationTax
	CreationVolumeRatio
	ShotQualityDelta
	ClutchTSDelta
	PressureResilience

	// Dependence proxies
	AssistedFGPct
	CatchShootFreq
	OpenShotFreq
	ContestedShotFreq
	SelfCreatedFreq

	// Trajectory
	PriorUsage
	PriorTSPct
	TSYoYDelta
	UsageYoYDelta
	AgeXTSYoYDelta
	AgeXUsageYoYDelta

	// Usage interactions
	UsageXCreationVolume
	UsageXCreationTax
	UsageXRimAppetite
	UsageXPressureResilience
	UsageXShotQuality
	UsageXFTRate

	numNames
)

// Len is the number of slots in every Vector.
const Len = int(numNames)

// Spec is the registry entry of a feature.
type Spec struct {
	Key     string
	Kind    Kind
	Derived bool // only ever written by the conditional assembler
}

var registry = [numNames]Spec{
	GamesPlayed:      {"games_played", KindCount, false},
	FGA:              {"fga", KindCount, false},
	ClutchMinutes:    {"clutch_minutes", KindCount, false},
	PressureAttempts: {"pressure_attempts", KindCount, false},
	RimAttempts:      {"rim_attempts", KindCount, false},

	Age:   {"age", KindNonNegative, false},
	Usage: {"usg_pct", KindFraction, false},

	TSPct:               {"ts_pct", KindFraction, false},
	FTRate:              {"ft_rate", KindNonNegative, false},
	TOVPct:              {"tov_pct", KindFraction, false},
	ASTPct:              {"ast_pct", KindFraction, false},
	RimAppetite:         {"rim_appetite", KindFraction, false},
	RimFGPct:            {"rim_fg_pct", KindFraction, false},
	CreationTax:         {"creation_tax", KindSigned, false},
	CreationVolumeRatio: {"creation_volume_ratio", KindNonNegative, false},
	ShotQualityDelta:    {"shot_quality_delta", KindSigned, false},
	ClutchTSDelta:       {"clutch_ts_delta", KindSigned, false},
	PressureResilience:  {"pressure_resilience", KindFraction, false},

	AssistedFGPct:     {"assisted_fg_pct", KindFraction, false},
	CatchShootFreq:    {"catch_shoot_freq", KindFraction, false},
	OpenShotFreq:      {"open_shot_freq", KindFraction, false},
	ContestedShotFreq: {"contested_shot_freq", KindFraction, false},
	SelfCreatedFreq:   {"self_created_freq", KindFraction, false},

	PriorUsage:        {"prior_usg_pct", KindFraction, false},
	PriorTSPct:        {"prior_ts_pct", KindFraction, false},
	TSYoYDelta:        {"ts_yoy_delta", KindSigned, true},
	UsageYoYDelta:     {"usg_yoy_delta", KindSigned, true},
	AgeXTSYoYDelta:    {"age_x_ts_yoy_delta", KindSigned, true},
	AgeXUsageYoYDelta: {"age_x_usg_yoy_delta", KindSigned, true},

	UsageXCreationVolume:     {"usg_x_creation_volume", KindNonNegative, true},
	UsageXCreationTax:        {"usg_x_creation_tax", KindSigned, true},
	UsageXRimAppetite:        {"usg_x_rim_appetite", KindFraction, true},
	UsageXPressureResilience: {"usg_x_pressure_resilience", KindFraction, true},
	UsageXShotQuality:        {"usg_x_shot_quality", KindSigned, true},
	UsageXFTRate:             {"usg_x_ft_rate", KindNonNegative, true},
}

var byKey = func() map[string]Name {
	m := make(map[string]Name, Len)
	for i := range registry {
		m[registry[i].Key] = Name(i)
	}
	return m
}()

// Interaction is a derived feature defined as Factor x Base.
type Interaction struct {
	Name   Name
	Factor Name
	Base   Name
}

// UsageInteractions are recomputed whenever the allocation level changes.
var UsageInteractions = []Interaction{
	{UsageXCreationVolume, Usage, CreationVolumeRatio},
	{UsageXCreationTax, Usage, CreationTax},
	{UsageXRimAppetite, Usage, RimAppetite},
	{UsageXPressureResilience, Usage, PressureResilience},
	{UsageXShotQuality, Usage, ShotQualityDelta},
	{UsageXFTRate, Usage, FTRate},
}

// AgeInteractions scale trajectory deltas by age.
var AgeInteractions = []Interaction{
	{AgeXTSYoYDelta, Age, TSYoYDelta},
	{AgeXUsageYoYDelta, Age, UsageYoYDelta},
}

// String returns the wire key of the feature.
func (n Name) String() string {
	if n < 0 || n >= numNames {
		return "unknown"
	}
	return registry[n].Key
}

// Spec returns the registry entry for n.
func (n Name) Spec() Spec {
	return registry[n]
}

// Lookup resolves a wire key.
func Lookup(key string) (Name, bool) {
	n, ok := byKey[key]
	return n, ok
}

// Names returns every feature in slot order.
func Names() []Name {
	out := make([]Name, Len)
	for i := range out {
		out[i] = Name(i)
	}
	return out
}

// Keys converts names to their wire keys.
func Keys(names []Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}
