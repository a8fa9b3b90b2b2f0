// Package metrics provides Prometheus instrumentation for the verification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks verification outcomes per gate, liveness decisions,
// spoof detections, match distances and model latency.
type Metrics struct {
	Verifications    *prometheus.CounterVec
	LivenessDecision *prometheus.CounterVec
	SpoofDetections  *prometheus.CounterVec
	MatchDistance    *prometheus.HistogramVec
	ModelDuration    *prometheus.HistogramVec
	ModelErrors      *prometheus.CounterVec
	GallerySize      prometheus.Gauge
}

// New creates a Metrics instance registered with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_verifications_total",
			Help: "Total verification attempts by deciding gate and outcome",
		}, []string{"gate", "outcome"}),
		LivenessDecision: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_liveness_decisions_total",
			Help: "Liveness ensemble decisions",
		}, []string{"decision"}),
		SpoofDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_spoof_objects_total",
			Help: "Display-like objects seen by the spoof filter, by class and whether they rejected the frame",
		}, []string{"class", "rejected"}),
		MatchDistance: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceverify_match_distance",
			Help:    "Decision distance reported by the identity matcher",
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.6, 0.8, 1},
		}, []string{"method"}),
		ModelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceverify_model_request_duration_seconds",
			Help:    "Duration of model server requests",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"model"}),
		ModelErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_model_errors_total",
			Help: "Model server failures",
		}, []string{"model"}),
		GallerySize: f.NewGauge(prometheus.GaugeOpts{
			Name: "faceverify_gallery_descriptors",
			Help: "Number of enrolled descriptors in the active gallery snapshot",
		}),
	}
}

// ObserveVerification records the gate that decided a verification.
// All methods are safe on a nil receiver so components can run uninstrumented.
func (m *Metrics) ObserveVerification(gate string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
		gate = "none"
	}
	m.Verifications.WithLabelValues(gate, outcome).Inc()
}

// ObserveLiveness records a liveness decision.
func (m *Metrics) ObserveLiveness(decision string) {
	if m == nil {
		return
	}
	m.LivenessDecision.WithLabelValues(decision).Inc()
}

// ObserveSpoofObject records a display-like detection.
func (m *Metrics) ObserveSpoofObject(class string, rejected bool) {
	if m == nil {
		return
	}
	r := "false"
	if rejected {
		r = "true"
	}
	m.SpoofDetections.WithLabelValues(class, r).Inc()
}

// ObserveMatch records the matcher's decision distance.
func (m *Metrics) ObserveMatch(method string, distance float64) {
	if m == nil {
		return
	}
	m.MatchDistance.WithLabelValues(method).Observe(distance)
}

// ObserveModel records the duration of a model request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveModel(model string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ModelDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		m.ModelErrors.WithLabelValues(model).Inc()
	}
}

// SetGallerySize records the number of enrolled descriptors.
func (m *Metrics) SetGallerySize(n int) {
	if m == nil {
		return
	}
	m.GallerySize.Set(float64(n))
}
