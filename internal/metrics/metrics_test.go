package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-projection/internal/calibration"
	"usage-projection/internal/engine"
	"usage-projection/internal/gates"
	"usage-projection/internal/model"
	"usage-projection/internal/quadrant"
)

func TestObservePrediction(t *testing.T) {
	r := NewRecorder()
	capped := 0.30
	res := engine.Result{
		PerformanceScore: 0.30,
		PerformanceLabel: model.Victim,
		Quadrant:         quadrant.Result{Quadrant: quadrant.Avoid},
		Gates: gates.Outcome{
			DataInsufficient: true,
			Trail: []gates.Record{
				{Gate: gates.GateDataSufficiency, Tier: gates.TierDataSufficiency.String(), Status: gates.StatusFired, Cap: &capped},
				{Gate: gates.GateClutchCollapse, Tier: gates.TierCatastrophic.String(), Status: gates.StatusExempted},
				{Gate: gates.GatePressureFragility, Tier: gates.TierCatastrophic.String(), Status: gates.StatusPassed},
			},
			Exemptions: []gates.AppliedExemption{
				{Gate: gates.GateClutchCollapse, Exemption: gates.ExemptionEliteRimFinishing},
			},
		},
	}

	r.ObservePrediction(res)
	r.ObservePrediction(res)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Predictions.WithLabelValues("avoid", "victim")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.GateFired.WithLabelValues("data_sufficiency", gates.GateDataSufficiency)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.GateFired.WithLabelValues("catastrophic", gates.GatePressureFragility)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Exemptions.WithLabelValues(gates.GateClutchCollapse, gates.ExemptionEliteRimFinishing)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.DataInsufficient))
}

func TestObserveThresholdsKeepsOneActiveVersion(t *testing.T) {
	r := NewRecorder()
	first, err := calibration.NewTable(map[string]float64{calibration.InefficiencyFloor: 0.52})
	require.NoError(t, err)
	fallback := calibration.FallbackTable()

	r.ObserveThresholds(first)
	r.ObserveThresholds(fallback)

	assert.Equal(t, 1, testutil.CollectAndCount(r.ThresholdTable))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ThresholdTable.WithLabelValues(fallback.Version(), "true")))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.DataInsufficient.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "projection_data_insufficient_total 1"))
}
