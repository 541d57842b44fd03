package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"spatialization-module/internal/core/domain"
	ports "spatialization-module/internal/core/ports/output"
)

// Metrics records masking, batch and fit activity.
type Metrics struct {
	MasksTotal   *prometheus.CounterVec
	MaskDuration prometheus.Histogram
	UnitsTotal   *prometheus.CounterVec
	FitsTotal    *prometheus.CounterVec
}

var _ ports.MetricsRecorder = (*Metrics)(nil)

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialization_masks_total",
			Help: "Mask operations by outcome status",
		}, []string{"status"}),
		MaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spatialization_mask_duration_seconds",
			Help:    "Duration of a single mask operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		UnitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialization_units_total",
			Help: "Top-level units processed by outcome status",
		}, []string{"status"}),
		FitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialization_fits_total",
			Help: "Curve fits by kind and convergence",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) ObserveMask(status domain.OutcomeStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MasksTotal.WithLabelValues(string(status)).Inc()
	m.MaskDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveUnit(status domain.OutcomeStatus) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveFit(kind string, success bool) {
	if m == nil {
		return
	}
	result := "converged"
	if !success {
		result = "failed"
	}
	m.FitsTotal.WithLabelValues(kind, result).Inc()
}
