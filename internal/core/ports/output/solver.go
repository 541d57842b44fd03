package ports

import (
	"context"

	"spatialization-module/internal/core/domain"
)

// ConstraintFunc is a scalar function of the decision vector.
type ConstraintFunc func(x []float64) float64

// ConstrainedProblem is a bounded nonlinear program:
// minimize Objective(x) subject to Equalities(x) == 0 and Inequalities(x) >= 0.
type ConstrainedProblem struct {
	Objective     func(x []float64) float64
	Initial       []float64
	Bounds        []domain.ParamBounds
	Equalities    []ConstraintFunc
	Inequalities  []ConstraintFunc
	MaxIterations int
}

type SolverResult struct {
	X            []float64
	F            float64
	Success      bool
	Message      string
	Iterations   int
	MaxViolation float64
}

// ConstrainedSolver solves a ConstrainedProblem.
type ConstrainedSolver interface {
	Minimize(ctx context.Context, p ConstrainedProblem) (*SolverResult, error)
}
