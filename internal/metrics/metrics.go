// Package metrics holds the Prometheus collectors of the layer loader.
//
// A nil *Loader is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase names used as the "phase" label.
const (
	PhaseManifestRead = "manifest_read"
	PhaseParse        = "parse"
	PhaseTexture      = "texture"
	PhaseBlobRead     = "blob_read"
	PhaseDecode       = "decode"
	PhaseColorBuffer  = "colorbuf"
)

// Layer outcomes used as the "outcome" label.
const (
	OutcomeLoaded    = "loaded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Loader groups the loader collectors.
type Loader struct {
	phase     *prometheus.HistogramVec
	layers    *prometheus.CounterVec
	blobBytes prometheus.Counter
	maxColor  prometheus.Gauge
}

// NewLoader creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use to avoid global state.
func NewLoader(reg prometheus.Registerer) *Loader {
	f := promauto.With(reg)
	return &Loader{
		phase: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "anatomy",
			Subsystem: "loader",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each layer load phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"phase"}),
		layers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anatomy",
			Subsystem: "loader",
			Name:      "layers_total",
			Help:      "Layer loads by outcome.",
		}, []string{"outcome"}),
		blobBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "anatomy",
			Subsystem: "loader",
			Name:      "blob_units_total",
			Help:      "16-bit code units read from geometry blobs.",
		}),
		maxColor: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "anatomy",
			Subsystem: "selection",
			Name:      "max_color",
			Help:      "Largest selection color assigned in the current session.",
		}),
	}
}

// ObservePhase records the duration of one phase.
func (m *Loader) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phase.WithLabelValues(phase).Observe(d.Seconds())
}

// LayerDone counts a finished layer.
func (m *Loader) LayerDone(outcome string) {
	if m == nil {
		return
	}
	m.layers.WithLabelValues(outcome).Inc()
}

// BlobUnits adds n code units read from a blob.
func (m *Loader) BlobUnits(n int) {
	if m == nil {
		return
	}
	m.blobBytes.Add(float64(n))
}

// SetMaxColor publishes the largest assigned selection color.
func (m *Loader) SetMaxColor(c uint32) {
	if m == nil {
		return
	}
	m.maxColor.Set(float64(c))
}
