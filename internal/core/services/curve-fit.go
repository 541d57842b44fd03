package services

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// CurveFitService fits one curve family to one series. Linear families are
// solved by least squares, the others by bounded minimization of the MSE.
type CurveFitService struct {
	solver  ports.ConstrainedSolver
	metrics ports.MetricsRecorder
}

func NewCurveFitService(solver ports.ConstrainedSolver, metrics ports.MetricsRecorder) *CurveFitService {
	return &CurveFitService{solver: solver, metrics: metrics}
}

func (s *CurveFitService) Fit(ctx context.Context, in domain.CurveFitInput) (*domain.CurveFitResult, error) {
	model, err := domain.LookupCurve(in.Kind)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(model); err != nil {
		return nil, err
	}

	var (
		params  []float64
		success = true
		message string
	)
	switch model.Kind {
	case domain.CurveLinear:
		alpha, beta := stat.LinearRegression(in.X, in.Y, nil, false)
		params = []float64{beta, alpha}
	case domain.CurveDoubleLinear:
		params, err = leastSquaresPlane(in.X, in.X2, in.Y)
		if err != nil {
			return nil, fmt.Errorf("%s fit %s: %w", model.Kind, in.Name, err)
		}
	default:
		sol, err := s.minimize(ctx, model, in)
		if err != nil {
			return nil, fmt.Errorf("%s fit %s: %w", model.Kind, in.Name, err)
		}
		params, success, message = sol.X, sol.Success, sol.Message
	}
	if floats.HasNaN(params) {
		return nil, fmt.Errorf("%s fit %s: degenerate regressors: %w", model.Kind, in.Name, domain.ErrInvalidFitInput)
	}

	if s.metrics != nil {
		s.metrics.ObserveFit(string(model.Kind), success)
	}
	return &domain.CurveFitResult{
		Name:    in.Name,
		Kind:    model.Kind,
		Params:  model.Named(params),
		Success: success,
		Message: message,
		Stats:   ComputeFitStats(model.Predict(params, in.X, in.X2), in.Y),
	}, nil
}

func (s *CurveFitService) minimize(ctx context.Context, model domain.CurveModel, in domain.CurveFitInput) (*ports.SolverResult, error) {
	bounds := in.Bounds
	if bounds == nil {
		bounds = model.Bounds
	}
	guess, err := model.Start(in.Initial)
	if err != nil {
		return nil, err
	}

	return s.solver.Minimize(ctx, ports.ConstrainedProblem{
		Objective: func(v []float64) float64 {
			sum := 0.0
			for i, y := range in.Y {
				var x2 float64
				if model.Inputs == 2 {
					x2 = in.X2[i]
				}
				d := model.Eval(v, in.X[i], x2) - y
				sum += d * d
			}
			return sum / float64(len(in.Y))
		},
		Initial: clampInto(guess, bounds),
		Bounds:  bounds,
	})
}

// maxPlaneCondition rejects regressors too close to collinear.
const maxPlaneCondition = 1e10

// leastSquaresPlane solves y = a0*x1 + a1*x2 + a2 by QR.
func leastSquaresPlane(x1, x2, y []float64) ([]float64, error) {
	n := len(y)
	design := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, x1[i])
		design.Set(i, 1, x2[i])
		design.Set(i, 2, 1)
	}

	var qr mat.QR
	qr.Factorize(design)
	if c := qr.Cond(); math.IsNaN(c) || c > maxPlaneCondition {
		return nil, fmt.Errorf("degenerate regressors, condition %.3g: %w", c, domain.ErrInvalidFitInput)
	}
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("degenerate regressors: %v: %w", err, domain.ErrInvalidFitInput)
	}
	return []float64{coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)}, nil
}

func clampInto(x []float64, bounds []domain.ParamBounds) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		b := bounds[i]
		switch {
		case v < b.Lower:
			v = b.Lower
		case v > b.Upper:
			v = b.Upper
		}
		out[i] = v
	}
	return out
}
