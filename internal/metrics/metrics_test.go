package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"spatialization-module/internal/core/domain"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveMask(domain.OutcomeSuccess, 20*time.Millisecond)
	m.ObserveMask(domain.OutcomeSuccess, 30*time.Millisecond)
	m.ObserveMask(domain.OutcomeSkippedCached, time.Millisecond)
	m.ObserveUnit(domain.OutcomeFailed)
	m.ObserveFit("regional", true)
	m.ObserveFit("regional", false)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.MasksTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.MasksTotal.WithLabelValues("skipped-cached")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.UnitsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FitsTotal.WithLabelValues("regional", "failed")))
	assert.Equal(t, 1, promtest.CollectAndCount(m.MaskDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMask(domain.OutcomeSuccess, time.Second)
		m.ObserveUnit(domain.OutcomeSuccess)
		m.ObserveFit("logistic", true)
	})
}
