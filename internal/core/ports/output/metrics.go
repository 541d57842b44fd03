package ports

import (
	"time"

	"spatialization-module/internal/core/domain"
)

// MetricsRecorder receives pipeline measurements.
type MetricsRecorder interface {
	ObserveMask(status domain.OutcomeStatus, elapsed time.Duration)
	ObserveUnit(status domain.OutcomeStatus)
	ObserveFit(kind string, success bool)
}
