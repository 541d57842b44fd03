package domain

import (
	"fmt"
	"math"
	"sort"
)

// CurveKind names a single-series curve family.
type CurveKind string

const (
	CurveLogistic          CurveKind = "logistic"
	CurveLinear            CurveKind = "linear"
	CurveDoubleLinear      CurveKind = "double-linear"
	CurveExponentialDecay  CurveKind = "exponential-decay"
	CurveExponentialDecay2 CurveKind = "exponential-decay2"
	CurveReciprocal        CurveKind = "reciprocal"
	CurveSTL               CurveKind = "stl"
)

// CurveModel describes one family: its parameter names in solver order, the
// number of regressors it reads and the defaults of a bounded fit.
//
// Linear models are solved by least squares and carry no guess or bounds.
type CurveModel struct {
	Kind   CurveKind
	Params []string
	Inputs int
	Linear bool
	Guess  []float64
	Bounds []ParamBounds
	Eval   func(p []float64, x1, x2 float64) float64
}

var curveModels = map[CurveKind]CurveModel{
	CurveLogistic: {
		Kind:   CurveLogistic,
		Params: []string{"scale", "rate", "midpoint"},
		Inputs: 1,
		Guess:  []float64{1, 1, 1},
		Bounds: []ParamBounds{{0, 600}, {0, 1}, {0, 100000}},
		Eval: func(p []float64, x, _ float64) float64 {
			return Logistic(x, p[0], p[1], p[2])
		},
	},
	CurveLinear: {
		Kind:   CurveLinear,
		Params: []string{"slope", "intercept"},
		Inputs: 1,
		Linear: true,
		Eval: func(p []float64, x, _ float64) float64 {
			return p[0]*x + p[1]
		},
	},
	CurveDoubleLinear: {
		Kind:   CurveDoubleLinear,
		Params: []string{"slope1", "slope2", "intercept"},
		Inputs: 2,
		Linear: true,
		Eval: func(p []float64, x1, x2 float64) float64 {
			return p[0]*x1 + p[1]*x2 + p[2]
		},
	},
	CurveExponentialDecay: {
		Kind:   CurveExponentialDecay,
		Params: []string{"scale", "rate", "offset"},
		Inputs: 1,
		Guess:  []float64{1, 1, 1},
		Bounds: []ParamBounds{{0, 1000}, {0, 1000}, {0, 1000}},
		Eval: func(p []float64, x, _ float64) float64 {
			return p[0]*math.Exp(-p[1]*x) + p[2]
		},
	},
	CurveExponentialDecay2: {
		Kind:   CurveExponentialDecay2,
		Params: []string{"scale", "rate"},
		Inputs: 1,
		Guess:  []float64{1, 1},
		Bounds: []ParamBounds{{0, 1000}, {0, 1000}},
		Eval: func(p []float64, x, _ float64) float64 {
			return p[0] * math.Exp(-p[1]*x)
		},
	},
	CurveReciprocal: {
		Kind:   CurveReciprocal,
		Params: []string{"scale", "shift"},
		Inputs: 1,
		Guess:  []float64{1, 10},
		Bounds: []ParamBounds{{0, 10}, {0, 1000}},
		Eval: func(p []float64, x, _ float64) float64 {
			return p[0] / (x + p[1])
		},
	},
	// x1 drives the logistic, x2 the decaying ceiling.
	CurveSTL: {
		Kind:   CurveSTL,
		Params: []string{"scale", "rate", "offset", "steepness", "midpoint"},
		Inputs: 2,
		Guess:  []float64{1, 1, 1, 1, 1},
		Bounds: []ParamBounds{{0, 600}, {0, 1000}, {0, 1000}, {0, 1}, {0, 100000}},
		Eval: func(p []float64, x1, x2 float64) float64 {
			return (p[0]*math.Exp(-p[1]*x2) + p[2]) / (1 + math.Exp(-p[3]*(x1-p[4])))
		},
	},
}

// LookupCurve returns the model of kind. An empty kind is a logistic.
func LookupCurve(kind CurveKind) (CurveModel, error) {
	if kind == "" {
		kind = CurveLogistic
	}
	m, ok := curveModels[kind]
	if !ok {
		return CurveModel{}, fmt.Errorf("curve kind %q, want one of %v: %w", kind, CurveKinds(), ErrInvalidFitInput)
	}
	return m, nil
}

func CurveKinds() []CurveKind {
	out := make([]CurveKind, 0, len(curveModels))
	for k := range curveModels {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start merges named overrides into the default guess.
func (m CurveModel) Start(overrides map[string]float64) ([]float64, error) {
	if m.Linear && len(overrides) > 0 {
		return nil, fmt.Errorf("%s is solved in closed form and takes no start point: %w", m.Kind, ErrInvalidFitInput)
	}
	x0 := append([]float64(nil), m.Guess...)
	for name, v := range overrides {
		i := m.index(name)
		if i < 0 {
			return nil, fmt.Errorf("%s has no parameter %q: %w", m.Kind, name, ErrInvalidFitInput)
		}
		x0[i] = v
	}
	return x0, nil
}

func (m CurveModel) Named(p []float64) map[string]float64 {
	out := make(map[string]float64, len(m.Params))
	for i, name := range m.Params {
		out[name] = p[i]
	}
	return out
}

func (m CurveModel) Predict(p, x1, x2 []float64) []float64 {
	out := make([]float64, len(x1))
	for i, x := range x1 {
		var second float64
		if m.Inputs == 2 {
			second = x2[i]
		}
		out[i] = m.Eval(p, x, second)
	}
	return out
}

func (m CurveModel) index(name string) int {
	for i, p := range m.Params {
		if p == name {
			return i
		}
	}
	return -1
}
