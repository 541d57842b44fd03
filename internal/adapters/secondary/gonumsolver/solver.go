package gonumsolver

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"spatialization-module/internal/core/domain"
	ports "spatialization-module/internal/core/ports/output"
)

const (
	defaultOuterIterations = 50
	defaultInnerIterations = 10000
	defaultTolerance       = 1e-6
	initialPenalty         = 10.0
	maxPenalty             = 1e8
)

// Start points are pulled this far inside their bounds; the variable
// transforms have zero slope on the boundary.
const (
	edgeMargin = 0.999
	edgeGap    = 1e-3
)

// Solver minimizes bounded, constrained problems with an augmented Lagrangian.
// Bounds are removed by a change of variables and each subproblem is solved by
// L-BFGS on a central-difference gradient.
type Solver struct {
	OuterIterations int
	Tolerance       float64
}

func New() *Solver {
	return &Solver{OuterIterations: defaultOuterIterations, Tolerance: defaultTolerance}
}

var _ ports.ConstrainedSolver = (*Solver)(nil)

func (s *Solver) Minimize(ctx context.Context, p ports.ConstrainedProblem) (*ports.SolverResult, error) {
	n := len(p.Initial)
	if n == 0 {
		return nil, fmt.Errorf("empty start point: %w", domain.ErrInvalidFitInput)
	}
	if p.Bounds != nil && len(p.Bounds) != n {
		return nil, fmt.Errorf("%d bounds for %d variables: %w", len(p.Bounds), n, domain.ErrInvalidFitInput)
	}
	if p.Objective == nil {
		return nil, fmt.Errorf("no objective: %w", domain.ErrInvalidFitInput)
	}

	outer := s.OuterIterations
	if outer <= 0 {
		outer = defaultOuterIterations
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	inner := p.MaxIterations
	if inner <= 0 {
		inner = defaultInnerIterations
	}

	tr := newTransform(p.Bounds, n)
	u := tr.toFree(p.Initial)
	x := make([]float64, n)

	lambda := make([]float64, len(p.Equalities))
	nu := make([]float64, len(p.Inequalities))
	mu := initialPenalty

	eq := make([]float64, len(p.Equalities))
	ineq := make([]float64, len(p.Inequalities))
	evalConstraints := func(x []float64) {
		for i, h := range p.Equalities {
			eq[i] = h(x)
		}
		for j, g := range p.Inequalities {
			ineq[j] = g(x)
		}
	}

	tr.toBounded(x, u)
	evalConstraints(x)
	violation := maxViolation(eq, ineq)

	iterations := 0
	converged := false
	for k := 0; k < outer; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lagrangian := func(v []float64) float64 {
			xv := make([]float64, n)
			tr.toBounded(xv, v)
			f := p.Objective(xv)
			for i, h := range p.Equalities {
				hv := h(xv)
				f += lambda[i]*hv + mu/2*hv*hv
			}
			for j, g := range p.Inequalities {
				shifted := math.Max(0, nu[j]-mu*g(xv))
				f += (shifted*shifted - nu[j]*nu[j]) / (2 * mu)
			}
			if math.IsNaN(f) {
				return math.Inf(1)
			}
			return f
		}
		problem := optimize.Problem{
			Func: lagrangian,
			Grad: func(grad, v []float64) {
				fd.Gradient(grad, lagrangian, v, &fd.Settings{Formula: fd.Central})
			},
		}
		res, err := optimize.Minimize(problem, u, &optimize.Settings{
			MajorIterations:   inner,
			GradientThreshold: 1e-10,
			Converger:         &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-14, Iterations: 25},
		}, &optimize.LBFGS{})
		if res != nil {
			iterations += res.Stats.MajorIterations
			if allFinite(res.X) {
				copy(u, res.X)
			}
		}
		if err != nil {
			// line search failures still leave a usable point
			log.WithError(err).WithField("outer", k).Debug("Inner solve stopped early")
		}

		tr.toBounded(x, u)
		evalConstraints(x)
		next := maxViolation(eq, ineq)

		for i := range lambda {
			lambda[i] += mu * eq[i]
		}
		for j := range nu {
			nu[j] = math.Max(0, nu[j]-mu*ineq[j])
		}

		if next <= tol {
			violation = next
			converged = true
			break
		}
		if next > 0.25*violation {
			mu = math.Min(mu*10, maxPenalty)
		}
		violation = next
	}

	out := &ports.SolverResult{
		X:            x,
		F:            p.Objective(x),
		Success:      converged && !math.IsNaN(violation),
		Iterations:   iterations,
		MaxViolation: violation,
	}
	if out.Success {
		out.Message = "optimization terminated successfully"
	} else {
		out.Message = fmt.Sprintf("constraint violation %.3g above tolerance %.3g after %d outer iterations", violation, tol, outer)
	}
	return out, nil
}

func maxViolation(eq, ineq []float64) float64 {
	v := 0.0
	for _, h := range eq {
		v = math.Max(v, math.Abs(h))
	}
	for _, g := range ineq {
		v = math.Max(v, -g)
	}
	return v
}

func allFinite(v []float64) bool {
	return !floats.HasNaN(v) && !math.IsInf(floats.Sum(v), 0)
}

type boundKind int

const (
	free boundKind = iota
	lowerOnly
	upperOnly
	twoSided
)

// transform maps an unconstrained vector onto the box given by the bounds.
type transform struct {
	kinds  []boundKind
	bounds []domain.ParamBounds
	scales []float64
}

func newTransform(bounds []domain.ParamBounds, n int) *transform {
	t := &transform{kinds: make([]boundKind, n), bounds: make([]domain.ParamBounds, n), scales: make([]float64, n)}
	for i := 0; i < n; i++ {
		b := domain.ParamBounds{Lower: math.Inf(-1), Upper: math.Inf(1)}
		if bounds != nil {
			b = bounds[i]
		}
		t.bounds[i] = b
		lo, hi := !math.IsInf(b.Lower, -1), !math.IsInf(b.Upper, 1)
		switch {
		case lo && hi:
			t.kinds[i] = twoSided
		case lo:
			t.kinds[i] = lowerOnly
			t.scales[i] = math.Max(1, math.Abs(b.Lower))
		case hi:
			t.kinds[i] = upperOnly
			t.scales[i] = math.Max(1, math.Abs(b.Upper))
		}
	}
	return t
}

func (t *transform) toBounded(dst, u []float64) {
	for i, v := range u {
		b := t.bounds[i]
		switch t.kinds[i] {
		case twoSided:
			dst[i] = b.Lower + (b.Upper-b.Lower)*(math.Sin(v)+1)/2
		case lowerOnly:
			dst[i] = b.Lower + t.scales[i]*(math.Sqrt(v*v+1)-1)
		case upperOnly:
			dst[i] = b.Upper - t.scales[i]*(math.Sqrt(v*v+1)-1)
		default:
			dst[i] = v
		}
	}
}

func (t *transform) toFree(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		b := t.bounds[i]
		switch t.kinds[i] {
		case twoSided:
			r := 2*(v-b.Lower)/(b.Upper-b.Lower) - 1
			u[i] = math.Asin(math.Max(-edgeMargin, math.Min(edgeMargin, r)))
		case lowerOnly:
			d := math.Max(edgeGap, (v-b.Lower)/t.scales[i]) + 1
			u[i] = math.Sqrt(d*d - 1)
		case upperOnly:
			d := math.Max(edgeGap, (b.Upper-v)/t.scales[i]) + 1
			u[i] = math.Sqrt(d*d - 1)
		default:
			u[i] = v
		}
	}
	return u
}
