package dto

import (
	"math"

	"spatialization-module/internal/core/domain"
)

type LogisticParamsDTO struct {
	Scale    float64 `json:"scale"`
	Rate     float64 `json:"rate"`
	Midpoint float64 `json:"midpoint"`
}

// BoundsDTO is one variable bound. A missing side is unbounded.
type BoundsDTO struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

type RegionalFitRequest struct {
	Name                string              `json:"name"`
	ParentX             []float64           `json:"parent_x" binding:"required"`
	ParentY             []float64           `json:"parent_y" binding:"required"`
	Weights             []float64           `json:"weights" binding:"required"`
	DataX               [][]float64         `json:"data_x" binding:"required"`
	DataY               [][]float64         `json:"data_y" binding:"required"`
	TolerancePercentage *float64            `json:"tolerance_percentage"`
	InitialGuess        []LogisticParamsDTO `json:"initial_guess"`
	MaxIterations       int                 `json:"max_iterations"`
}

// CurveFitRequest fits the curve kind named in the path. Initial overrides
// parameters of the default guess by name.
type CurveFitRequest struct {
	Name    string             `json:"name"`
	X       []float64          `json:"x" binding:"required"`
	X2      []float64          `json:"x2"`
	Y       []float64          `json:"y" binding:"required"`
	Initial map[string]float64 `json:"initial"`
	Bounds  []BoundsDTO        `json:"bounds"`
}

type FitStatsResponse struct {
	MSE      float64 `json:"mse"`
	RMSE     float64 `json:"rmse"`
	RSquared float64 `json:"r_squared"`
}

type RegionalFitResponse struct {
	Name         string              `json:"name"`
	Params       []LogisticParamsDTO `json:"params"`
	Success      bool                `json:"success"`
	Message      string              `json:"message,omitempty"`
	Objective    *float64            `json:"objective"`
	MaxViolation *float64            `json:"max_violation"`
	Iterations   int                 `json:"iterations"`
	Stats        FitStatsResponse    `json:"stats"`
	Predicted    []float64           `json:"predicted,omitempty"`
}

type CurveFitResponse struct {
	Name    string             `json:"name"`
	Kind    string             `json:"kind"`
	Params  map[string]float64 `json:"params"`
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Stats   FitStatsResponse   `json:"stats"`
}

func ToRegionalFitInput(req *RegionalFitRequest) domain.RegionalFitInput {
	in := domain.RegionalFitInput{
		Name:                req.Name,
		ParentX:             req.ParentX,
		ParentY:             req.ParentY,
		Weights:             req.Weights,
		DataX:               req.DataX,
		DataY:               req.DataY,
		TolerancePercentage: req.TolerancePercentage,
		MaxIterations:       req.MaxIterations,
	}
	for _, g := range req.InitialGuess {
		in.InitialGuess = append(in.InitialGuess, toParams(g))
	}
	return in
}

func ToCurveFitInput(kind string, req *CurveFitRequest) domain.CurveFitInput {
	in := domain.CurveFitInput{
		Name:    req.Name,
		Kind:    domain.CurveKind(kind),
		X:       req.X,
		X2:      req.X2,
		Y:       req.Y,
		Initial: req.Initial,
	}
	for _, b := range req.Bounds {
		bound := domain.ParamBounds{Lower: math.Inf(-1), Upper: math.Inf(1)}
		if b.Lower != nil {
			bound.Lower = *b.Lower
		}
		if b.Upper != nil {
			bound.Upper = *b.Upper
		}
		in.Bounds = append(in.Bounds, bound)
	}
	return in
}

func ToRegionalFitResponse(r *domain.RegionalFitResult) RegionalFitResponse {
	resp := RegionalFitResponse{
		Name:         r.Name,
		Params:       make([]LogisticParamsDTO, 0, len(r.Params)),
		Success:      r.Success,
		Message:      r.Message,
		Objective:    finite(r.Objective),
		MaxViolation: finite(r.MaxViolation),
		Iterations:   r.Iterations,
		Stats:        toStats(r.Stats),
		Predicted:    r.Predicted,
	}
	for _, p := range r.Params {
		resp.Params = append(resp.Params, fromParams(p))
	}
	return resp
}

func ToCurveFitResponse(r *domain.CurveFitResult) CurveFitResponse {
	return CurveFitResponse{
		Name:    r.Name,
		Kind:    string(r.Kind),
		Params:  r.Params,
		Success: r.Success,
		Message: r.Message,
		Stats:   toStats(r.Stats),
	}
}

func toParams(p LogisticParamsDTO) domain.LogisticParams {
	return domain.LogisticParams{Scale: p.Scale, Rate: p.Rate, Midpoint: p.Midpoint}
}

func fromParams(p domain.LogisticParams) LogisticParamsDTO {
	return LogisticParamsDTO{Scale: p.Scale, Rate: p.Rate, Midpoint: p.Midpoint}
}

func toStats(s domain.FitStats) FitStatsResponse {
	return FitStatsResponse{MSE: s.MSE, RMSE: s.RMSE, RSquared: s.RSquared}
}

// finite drops values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
