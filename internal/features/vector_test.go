package features

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestRegistryKeysAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, n := range Names() {
		key := n.String()
		if key == "" || key == "unknown" {
			t.Fatalf("feature %d has no key", n)
		}
		if seen[key] {
			t.Errorf("duplicate key %q", key)
		}
		seen[key] = true
		if got, ok := Lookup(key); !ok || got != n {
			t.Errorf("Lookup(%q) = %v, %v; want %v", key, got, ok, n)
		}
	}
}

func TestInteractionsAreDerived(t *testing.T) {
	for _, in := range append(append([]Interaction{}, UsageInteractions...), AgeInteractions...) {
		if !in.Name.Spec().Derived {
			t.Errorf("%s must be marked derived", in.Name)
		}
		if in.Base.Spec().Derived && in.Factor != Age {
			t.Errorf("%s uses derived base %s", in.Name, in.Base)
		}
	}
}

func TestVectorWithWithout(t *testing.T) {
	var v Vector
	if v.Has(TSPct) {
		t.Fatal("zero vector should have every slot missing")
	}

	a := v.With(TSPct, 0.58)
	if v.Has(TSPct) {
		t.Error("With must not mutate the receiver")
	}
	if x, ok := a.Get(TSPct); !ok || x != 0.58 {
		t.Errorf("Get(TSPct) = %v, %v", x, ok)
	}

	b := a.Without(TSPct)
	if b.Has(TSPct) || !a.Has(TSPct) {
		t.Error("Without must clear only the copy")
	}
}

func TestVectorZeroIsNotMissing(t *testing.T) {
	v := Vector{}.With(CreationTax, 0)
	if x, ok := v.Get(CreationTax); !ok || x != 0 {
		t.Errorf("explicit zero should be present, got %v, %v", x, ok)
	}
}

func TestVectorCoverage(t *testing.T) {
	v := Vector{}.With(TSPct, 0.55).With(FTRate, 0.3)
	tests := []struct {
		name  string
		names []Name
		want  float64
	}{
		{"Empty", nil, 1},
		{"AllPresent", []Name{TSPct, FTRate}, 1},
		{"Half", []Name{TSPct, RimAppetite}, 0.5},
		{"None", []Name{RimAppetite, ClutchTSDelta}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Coverage(tt.names); got != tt.want {
				t.Errorf("Coverage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       Vector
		wantErr bool
	}{
		{"Empty", Vector{}, false},
		{"Valid", Vector{}.With(TSPct, 0.6).With(CreationTax, -0.12).With(FGA, 400), false},
		{"FractionTooHigh", Vector{}.With(TSPct, 1.2), true},
		{"NegativeCount", Vector{}.With(FGA, -1), true},
		{"NaN", Vector{}.With(ShotQualityDelta, math.NaN()), true},
		{"Inf", Vector{}.With(Age, math.Inf(1)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestVectorJSON(t *testing.T) {
	in := []byte(`{"ts_pct":0.57,"usg_pct":0.22,"rim_fg_pct":null}`)
	var v Vector
	if err := json.Unmarshal(in, &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Has(RimFGPct) {
		t.Error("null should decode as missing")
	}
	if x, _ := v.Get(Usage); x != 0.22 {
		t.Errorf("usg_pct = %v", x)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Vector
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if back != v {
		t.Errorf("round trip changed the vector: %s", out)
	}
}

func TestVectorJSONUnknownKey(t *testing.T) {
	var v Vector
	err := json.Unmarshal([]byte(`{"ts_pct":0.5,"plus_minus":3}`), &v)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unknown key, got %v", err)
	}

	if _, err := FromMap(map[string]float64{"bogus": 1}); !errors.Is(err, ErrInvalid) {
		t.Errorf("FromMap should reject unknown keys, got %v", err)
	}
}
