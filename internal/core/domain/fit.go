package domain

import (
	"fmt"
	"math"
)

// LogisticParams are the parameters of s / (1 + exp(-k (x - x0))).
type LogisticParams struct {
	Scale    float64 `json:"scale" yaml:"scale"`
	Rate     float64 `json:"rate" yaml:"rate"`
	Midpoint float64 `json:"midpoint" yaml:"midpoint"`
}

func (p LogisticParams) Eval(x float64) float64 {
	return Logistic(x, p.Scale, p.Rate, p.Midpoint)
}

func Logistic(x, s, k, x0 float64) float64 {
	return s / (1 + math.Exp(-k*(x-x0)))
}

// ParamBounds bounds one variable. Use math.Inf for an open side.
type ParamBounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (b ParamBounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Default bounds and initial guess of one regional logistic.
var (
	ScaleBounds    = ParamBounds{Lower: 10, Upper: 250}
	RateBounds     = ParamBounds{Lower: 0.0001, Upper: 0.001}
	MidpointBounds = ParamBounds{Lower: 10000, Upper: math.Inf(1)}

	DefaultLogisticGuess = LogisticParams{Scale: 50, Rate: 0.0003, Midpoint: 18000}
)

// RegionalFitInput describes a parent curve split into weighted subregions,
// each with its own partial observations.
type RegionalFitInput struct {
	Name    string      `json:"name" yaml:"name"`
	ParentX []float64   `json:"parent_x" yaml:"parent_x"`
	ParentY []float64   `json:"parent_y" yaml:"parent_y"`
	Weights []float64   `json:"weights" yaml:"weights"`
	DataX   [][]float64 `json:"data_x" yaml:"data_x"`
	DataY   [][]float64 `json:"data_y" yaml:"data_y"`

	// TolerancePercentage switches data points from equality constraints to a
	// relative band of +/- TolerancePercentage percent.
	TolerancePercentage *float64 `json:"tolerance_percentage,omitempty" yaml:"tolerance_percentage,omitempty"`

	InitialGuess  []LogisticParams `json:"initial_guess,omitempty" yaml:"initial_guess,omitempty"`
	MaxIterations int              `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

func (in RegionalFitInput) Validate() error {
	if len(in.ParentX) == 0 || len(in.ParentX) != len(in.ParentY) {
		return fmt.Errorf("parent series lengths %d/%d: %w", len(in.ParentX), len(in.ParentY), ErrInvalidFitInput)
	}
	n := len(in.Weights)
	if n == 0 {
		return fmt.Errorf("no subregion weights: %w", ErrInvalidFitInput)
	}
	if len(in.DataX) != n || len(in.DataY) != n {
		return fmt.Errorf("%d weights but %d/%d observation series: %w", n, len(in.DataX), len(in.DataY), ErrInvalidFitInput)
	}
	for i := range in.DataX {
		if len(in.DataX[i]) != len(in.DataY[i]) {
			return fmt.Errorf("subregion %d observation lengths %d/%d: %w", i, len(in.DataX[i]), len(in.DataY[i]), ErrInvalidFitInput)
		}
	}
	if in.InitialGuess != nil && len(in.InitialGuess) != n {
		return fmt.Errorf("%d initial guesses for %d subregions: %w", len(in.InitialGuess), n, ErrInvalidFitInput)
	}
	if in.TolerancePercentage != nil && *in.TolerancePercentage < 0 {
		return fmt.Errorf("negative tolerance: %w", ErrInvalidFitInput)
	}
	return nil
}

// FitStats are goodness-of-fit measures of a predicted series.
type FitStats struct {
	MSE      float64 `json:"mse" yaml:"mse"`
	RMSE     float64 `json:"rmse" yaml:"rmse"`
	RSquared float64 `json:"r_squared" yaml:"r_squared"`
}

type RegionalFitResult struct {
	Name    string           `json:"name" yaml:"name"`
	Params  []LogisticParams `json:"params" yaml:"params"`
	Success bool             `json:"success" yaml:"success"`
	Message string           `json:"message,omitempty" yaml:"message,omitempty"`
	// Objective is the RMS deviation of the weighted sub-curves from the
	// parent curve at the solution.
	Objective    float64   `json:"objective" yaml:"objective"`
	MaxViolation float64   `json:"max_violation" yaml:"max_violation"`
	Iterations   int       `json:"iterations" yaml:"iterations"`
	Stats        FitStats  `json:"stats" yaml:"stats"`
	Predicted    []float64 `json:"predicted,omitempty" yaml:"predicted,omitempty"`
}

// Err returns ErrSolverNonConvergence when the fit must not be trusted.
func (r *RegionalFitResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", r.Name, r.Message, ErrSolverNonConvergence)
}

// CurveFitInput is a single curve fit of y against x, and x2 for the
// two-regressor families. Initial overrides named parameters of the default
// guess; Bounds replaces the default bounds as a whole.
type CurveFitInput struct {
	Name    string             `json:"name" yaml:"name"`
	Kind    CurveKind          `json:"kind" yaml:"kind"`
	X       []float64          `json:"x" yaml:"x"`
	X2      []float64          `json:"x2,omitempty" yaml:"x2,omitempty"`
	Y       []float64          `json:"y" yaml:"y"`
	Initial map[string]float64 `json:"initial,omitempty" yaml:"initial,omitempty"`
	Bounds  []ParamBounds      `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

func (in CurveFitInput) Validate(m CurveModel) error {
	if len(in.X) == 0 || len(in.X) != len(in.Y) {
		return fmt.Errorf("series lengths %d/%d: %w", len(in.X), len(in.Y), ErrInvalidFitInput)
	}
	if m.Inputs == 2 && len(in.X2) != len(in.X) {
		return fmt.Errorf("%s needs x2 of length %d, got %d: %w", m.Kind, len(in.X), len(in.X2), ErrInvalidFitInput)
	}
	if m.Linear {
		if in.Bounds != nil {
			return fmt.Errorf("%s fits are unbounded: %w", m.Kind, ErrInvalidFitInput)
		}
		if len(in.X) < len(m.Params) {
			return fmt.Errorf("%s needs at least %d points, got %d: %w", m.Kind, len(m.Params), len(in.X), ErrInvalidFitInput)
		}
	}
	if in.Bounds != nil && len(in.Bounds) != len(m.Params) {
		return fmt.Errorf("%s takes %d bounds, got %d: %w", m.Kind, len(m.Params), len(in.Bounds), ErrInvalidFitInput)
	}
	return nil
}

type CurveFitResult struct {
	Name    string             `json:"name" yaml:"name"`
	Kind    CurveKind          `json:"kind" yaml:"kind"`
	Params  map[string]float64 `json:"params" yaml:"params"`
	Success bool               `json:"success" yaml:"success"`
	Message string             `json:"message,omitempty" yaml:"message,omitempty"`
	Stats   FitStats           `json:"stats" yaml:"stats"`
}

// RasterSummary aggregates the valid pixels of one raster band.
type RasterSummary struct {
	Path        string  `json:"path" yaml:"path"`
	Band        int     `json:"band" yaml:"band"`
	Sum         float64 `json:"sum" yaml:"sum"`
	ValidPixels int     `json:"valid_pixels" yaml:"valid_pixels"`
	Area        float64 `json:"area" yaml:"area"`
}

// NodeSummary is a raster summary attached to a region of the tree.
// ChildrenSum totals the summarized children of a region that has any, so a
// parent can be compared against its split.
type NodeSummary struct {
	RegionID    string        `json:"region_id" yaml:"region_id"`
	Level       int           `json:"level" yaml:"level"`
	Asset       string        `json:"asset" yaml:"asset"`
	Summary     RasterSummary `json:"summary" yaml:"summary"`
	ChildrenSum *float64      `json:"children_sum,omitempty" yaml:"children_sum,omitempty"`
}
