package testutil

import (
	"context"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/mock"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// MockMasker is a mock of RasterMasker.
type MockMasker struct {
	mock.Mock
}

func (m *MockMasker) Mask(ctx context.Context, job domain.MaskJob) (*domain.MaskResult, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MaskResult), args.Error(1)
}

// MockReprojector is a mock of Reprojector.
type MockReprojector struct {
	mock.Mock
}

func (m *MockReprojector) Reproject(g geom.Polygonal, from, to string) (geom.Polygonal, error) {
	args := m.Called(g, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(geom.Polygonal), args.Error(1)
}

// MockConstrainedSolver is a mock of ConstrainedSolver.
type MockConstrainedSolver struct {
	mock.Mock
}

func (m *MockConstrainedSolver) Minimize(ctx context.Context, p ports.ConstrainedProblem) (*ports.SolverResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SolverResult), args.Error(1)
}

// MockBoundarySource is a mock of BoundarySource.
type MockBoundarySource struct {
	mock.Mock
}

func (m *MockBoundarySource) Load(ctx context.Context) (*domain.BoundarySet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BoundarySet), args.Error(1)
}

// MockBoundaryResolver is a mock of BoundaryResolver.
type MockBoundaryResolver struct {
	mock.Mock
}

func (m *MockBoundaryResolver) Resolve(spec domain.BoundarySpec) (ports.BoundarySource, error) {
	args := m.Called(spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.BoundarySource), args.Error(1)
}

// MockMetrics is a mock of MetricsRecorder.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ObserveMask(status domain.OutcomeStatus, elapsed time.Duration) {
	m.Called(status, elapsed)
}

func (m *MockMetrics) ObserveUnit(status domain.OutcomeStatus) {
	m.Called(status)
}

func (m *MockMetrics) ObserveFit(kind string, success bool) {
	m.Called(kind, success)
}

// StaticResolver resolves every spec to an in-memory set keyed by spec.Path.
type StaticResolver map[string]*domain.BoundarySet

func (r StaticResolver) Resolve(spec domain.BoundarySpec) (ports.BoundarySource, error) {
	set, ok := r[spec.Path]
	if !ok {
		return nil, domain.ErrUnsupportedBoundarySource
	}
	return staticSource{set: set}, nil
}

type staticSource struct {
	set *domain.BoundarySet
}

func (s staticSource) Load(context.Context) (*domain.BoundarySet, error) {
	return s.set, nil
}
