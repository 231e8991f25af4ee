package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usage-projection/internal/calibration"
	"usage-projection/internal/engine"
	"usage-projection/internal/gates"
)

// Recorder holds the projection metrics on a private registry. It
// implements engine.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	Predictions      *prometheus.CounterVec
	GateFired        *prometheus.CounterVec
	Exemptions       *prometheus.CounterVec
	DataInsufficient prometheus.Counter
	PerformanceScore prometheus.Histogram
	ThresholdTable   *prometheus.GaugeVec
}

// NewRecorder creates and registers every metric.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projection_predictions_total",
				Help: "Predictions served, by risk quadrant and final label",
			},
			[]string{"quadrant", "label"},
		),

		GateFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projection_gate_fired_total",
				Help: "Gate firings by tier and gate",
			},
			[]string{"tier", "gate"},
		),

		Exemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projection_exemptions_applied_total",
				Help: "Exemptions that cleared a gate",
			},
			[]string{"gate", "exemption"},
		),

		DataInsufficient: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projection_data_insufficient_total",
				Help: "Predictions flagged as data insufficient",
			},
		),

		PerformanceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "projection_performance_score",
				Help:    "Gated star-level probability",
				Buckets: prometheus.LinearBuckets(0.05, 0.05, 19),
			},
		),

		ThresholdTable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "projection_threshold_table_info",
				Help: "Installed threshold table; the active version is set to 1",
			},
			[]string{"version", "degraded"},
		),
	}

	r.registry.MustRegister(
		r.Predictions,
		r.GateFired,
		r.Exemptions,
		r.DataInsufficient,
		r.PerformanceScore,
		r.ThresholdTable,
	)
	return r
}

// ObservePrediction records one result.
func (r *Recorder) ObservePrediction(res engine.Result) {
	r.Predictions.WithLabelValues(string(res.Quadrant.Quadrant), res.PerformanceLabel.String()).Inc()
	r.PerformanceScore.Observe(res.PerformanceScore)
	if res.Gates.DataInsufficient {
		r.DataInsufficient.Inc()
	}
	for _, rec := range res.Gates.Trail {
		if rec.Status == gates.StatusFired {
			r.GateFired.WithLabelValues(rec.Tier, rec.Gate).Inc()
		}
	}
	for _, ex := range res.Gates.Exemptions {
		r.Exemptions.WithLabelValues(ex.Gate, ex.Exemption).Inc()
	}
}

// ObserveThresholds marks t as the active table.
func (r *Recorder) ObserveThresholds(t *calibration.Table) {
	r.ThresholdTable.Reset()
	r.ThresholdTable.WithLabelValues(t.Version(), strconv.FormatBool(t.Degraded())).Set(1)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
