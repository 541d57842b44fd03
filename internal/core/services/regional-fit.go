package services

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// RegionalFitService splits a parent logistic curve into weighted subregion
// logistics that stay consistent with each subregion's own observations.
type RegionalFitService struct {
	solver  ports.ConstrainedSolver
	metrics ports.MetricsRecorder
}

func NewRegionalFitService(solver ports.ConstrainedSolver, metrics ports.MetricsRecorder) *RegionalFitService {
	return &RegionalFitService{solver: solver, metrics: metrics}
}

// Fit solves for one (scale, rate, midpoint) triple per subregion. A result
// with Success=false is still returned; callers must check Err().
func (s *RegionalFitService) Fit(ctx context.Context, in domain.RegionalFitInput) (*domain.RegionalFitResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	n := len(in.Weights)
	problem := ports.ConstrainedProblem{
		Objective:     regionalObjective(in),
		Initial:       make([]float64, 0, 3*n),
		Bounds:        make([]domain.ParamBounds, 0, 3*n),
		MaxIterations: in.MaxIterations,
	}
	for i := 0; i < n; i++ {
		guess := domain.DefaultLogisticGuess
		if in.InitialGuess != nil {
			guess = in.InitialGuess[i]
		}
		problem.Initial = append(problem.Initial, guess.Scale, guess.Rate, guess.Midpoint)
		problem.Bounds = append(problem.Bounds, domain.ScaleBounds, domain.RateBounds, domain.MidpointBounds)
	}

	for i := 0; i < n; i++ {
		for j := range in.DataX[i] {
			xd, yd := in.DataX[i][j], in.DataY[i][j]
			if in.TolerancePercentage == nil {
				problem.Equalities = append(problem.Equalities, func(v []float64) float64 {
					return subLogistic(v, i, xd) - yd
				})
				continue
			}
			band := *in.TolerancePercentage / 100 * yd
			problem.Inequalities = append(problem.Inequalities,
				func(v []float64) float64 { return yd + band - subLogistic(v, i, xd) },
				func(v []float64) float64 { return subLogistic(v, i, xd) - (yd - band) },
			)
		}
	}

	sol, err := s.solver.Minimize(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("regional fit %s: %w", in.Name, err)
	}

	res := &domain.RegionalFitResult{
		Name:         in.Name,
		Success:      sol.Success,
		Message:      sol.Message,
		Objective:    math.Sqrt(math.Max(sol.F, 0)),
		MaxViolation: sol.MaxViolation,
		Iterations:   sol.Iterations,
		Params:       make([]domain.LogisticParams, n),
	}
	for i := range res.Params {
		res.Params[i] = domain.LogisticParams{Scale: sol.X[3*i], Rate: sol.X[3*i+1], Midpoint: sol.X[3*i+2]}
	}
	res.Predicted = make([]float64, len(in.ParentX))
	for j, x := range in.ParentX {
		res.Predicted[j] = weightedSum(sol.X, in.Weights, x)
	}
	res.Stats = ComputeFitStats(res.Predicted, in.ParentY)

	if s.metrics != nil {
		s.metrics.ObserveFit("regional", res.Success)
	}
	logger := log.WithFields(log.Fields{
		"fit":           in.Name,
		"subregions":    n,
		"iterations":    res.Iterations,
		"rmse":          res.Stats.RMSE,
		"max_violation": res.MaxViolation,
	})
	if res.Success {
		logger.Info("Regional fit converged")
	} else {
		logger.WithField("message", res.Message).Warn("Regional fit did not converge")
	}
	return res, nil
}

func subLogistic(v []float64, i int, x float64) float64 {
	return domain.Logistic(x, v[3*i], v[3*i+1], v[3*i+2])
}

func weightedSum(v, weights []float64, x float64) float64 {
	total := 0.0
	for i, w := range weights {
		total += w * subLogistic(v, i, x)
	}
	return total
}

// regionalObjective is the mean squared deviation between the weighted sum of
// sub-logistics and the parent curve. It shares its minimizer with the RMS and
// stays smooth at a zero residual; Fit reports the square root.
func regionalObjective(in domain.RegionalFitInput) func([]float64) float64 {
	return func(v []float64) float64 {
		sum := 0.0
		for j, x := range in.ParentX {
			d := weightedSum(v, in.Weights, x) - in.ParentY[j]
			sum += d * d
		}
		return sum / float64(len(in.ParentX))
	}
}

// ComputeFitStats compares predicted values with observations.
func ComputeFitStats(predicted, observed []float64) domain.FitStats {
	if len(predicted) == 0 || len(predicted) != len(observed) {
		return domain.FitStats{}
	}
	mse := 0.0
	for i := range predicted {
		d := observed[i] - predicted[i]
		mse += d * d
	}
	mse /= float64(len(predicted))

	// undefined for a constant series; JSON cannot carry NaN
	r2 := stat.RSquaredFrom(predicted, observed, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	return domain.FitStats{
		MSE:      mse,
		RMSE:     math.Sqrt(mse),
		RSquared: r2,
	}
}
