// Package levmar implements a box-constrained damped least-squares
// solver (projected Levenberg–Marquardt) with a forward-difference
// Jacobian. Residual functions are expected to fold any per-point
// weighting into the residuals themselves, so the covariance returned
// at the optimum is the absolute parameter covariance (JᵀJ)⁻¹.
package levmar

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-peakfit/internal/numeric"
)

var (
	// ErrDimension is returned when bound vectors do not cover the
	// parameter vector.
	ErrDimension = errors.New("levmar: dimension mismatch")

	// ErrInfeasible is returned when the initial point violates its
	// own bounds or a bound pair is inverted.
	ErrInfeasible = errors.New("levmar: infeasible starting point")

	// ErrConvergence is returned when the iteration budget is
	// exhausted or the objective degenerates to a non-finite value.
	ErrConvergence = errors.New("levmar: failed to converge")

	// ErrCovariance is returned when the Jacobian at the optimum is
	// singular and no covariance can be estimated.
	ErrCovariance = errors.New("levmar: covariance not estimable")
)

// Problem describes a weighted least-squares problem. Residuals must
// write one value per data point into dst for the given parameters.
// Lower and Upper, when non-nil, hold one bound per parameter and may
// contain ±Inf for unbounded entries.
type Problem struct {
	Residuals func(dst, params []float64)
	NumPoints int
	Lower     []float64
	Upper     []float64
}

// Settings tunes the solver. Zero values select defaults.
type Settings struct {
	MaxIterations int
	CostTol       float64
	GradTol       float64
	StepTol       float64
}

// Result holds the solution of a solve.
type Result struct {
	Params     []float64
	Covariance *mat.Dense
	Cost       float64
	Iterations int
}

const (
	defaultMaxIterations = 400
	defaultCostTol       = 1e-12
	defaultGradTol       = 1e-10
	defaultStepTol       = 1e-12

	lambdaInit     = 1e-3
	lambdaShrink   = 1.0 / 3.0
	lambdaGrow     = 10.0
	lambdaFloor    = 1e-14
	lambdaCeil     = 1e14
	diffStepFactor = 1e-8
)

// Solve minimises the sum of squared residuals starting from init,
// keeping every parameter inside its bounds.
func Solve(p Problem, init []float64, s *Settings) (Result, error) {
	n := len(init)
	m := p.NumPoints

	if n == 0 || m == 0 {
		return Result{}, fmt.Errorf("%w: %d parameters, %d points", ErrDimension, n, m)
	}

	lower, upper, err := p.bounds(n)
	if err != nil {
		return Result{}, err
	}

	for i, v := range init {
		if lower[i] > upper[i] {
			return Result{}, fmt.Errorf("%w: bound %d inverted (%v > %v)", ErrInfeasible, i, lower[i], upper[i])
		}

		if v < lower[i] || v > upper[i] {
			return Result{}, fmt.Errorf("%w: parameter %d = %v outside [%v, %v]", ErrInfeasible, i, v, lower[i], upper[i])
		}
	}

	cfg := defaults(s)

	params := make([]float64, n)
	copy(params, init)

	residuals := make([]float64, m)
	trialRes := make([]float64, m)
	trial := make([]float64, n)

	p.Residuals(residuals, params)

	cost := vecmath.DotProduct(residuals, residuals)
	if !finite(cost) {
		return Result{}, fmt.Errorf("%w: non-finite objective at starting point", ErrConvergence)
	}

	jac := mat.NewDense(m, n, nil)
	lambda := lambdaInit

	var iter int

	for iter = 1; iter <= cfg.MaxIterations; iter++ {
		p.jacobian(jac, params, residuals, lower, upper)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		grad := mat.NewVecDense(n, nil)
		grad.MulVec(jac.T(), mat.NewVecDense(m, residuals))

		if maxAbsVec(grad) < cfg.GradTol {
			break
		}

		improved := false

		for lambda <= lambdaCeil {
			step, ok := dampedStep(&jtj, grad, lambda)
			if !ok {
				lambda *= lambdaGrow
				continue
			}

			for i := range trial {
				trial[i] = numeric.Clamp(params[i]+step.AtVec(i), lower[i], upper[i])
			}

			p.Residuals(trialRes, trial)

			trialCost := vecmath.DotProduct(trialRes, trialRes)

			if finite(trialCost) && trialCost < cost {
				stepNorm := paramDelta(params, trial)
				costDrop := cost - trialCost

				copy(params, trial)
				copy(residuals, trialRes)
				cost = trialCost

				lambda = math.Max(lambda*lambdaShrink, lambdaFloor)
				improved = true

				if costDrop <= cfg.CostTol*(1+cost) || stepNorm <= cfg.StepTol*(1+vecNorm(params)) {
					iter++
					goto done
				}

				break
			}

			lambda *= lambdaGrow
		}

		if !improved {
			// The damping saturated without finding a lower cost; the
			// current point is as good as this search gets.
			break
		}
	}

	if iter > cfg.MaxIterations {
		return Result{}, fmt.Errorf("%w: iteration budget (%d) exhausted", ErrConvergence, cfg.MaxIterations)
	}

done:
	p.jacobian(jac, params, residuals, lower, upper)

	cov, err := covariance(jac)
	if err != nil {
		return Result{}, err
	}

	return Result{Params: params, Covariance: cov, Cost: cost, Iterations: iter}, nil
}

func (p Problem) bounds(n int) (lower, upper []float64, err error) {
	lower = make([]float64, n)
	upper = make([]float64, n)

	for i := range n {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}

	if p.Lower != nil {
		if len(p.Lower) < n {
			return nil, nil, fmt.Errorf("%w: %d lower bounds for %d parameters", ErrDimension, len(p.Lower), n)
		}

		copy(lower, p.Lower[:n])
	}

	if p.Upper != nil {
		if len(p.Upper) < n {
			return nil, nil, fmt.Errorf("%w: %d upper bounds for %d parameters", ErrDimension, len(p.Upper), n)
		}

		copy(upper, p.Upper[:n])
	}

	return lower, upper, nil
}

// jacobian fills jac with forward differences, flipping the step
// direction when a parameter sits against its upper bound.
func (p Problem) jacobian(jac *mat.Dense, params, residuals, lower, upper []float64) {
	n := len(params)
	m := len(residuals)

	perturbed := make([]float64, n)
	shifted := make([]float64, m)

	for j := range n {
		h := diffStepFactor * math.Max(math.Abs(params[j]), 1)
		if params[j]+h > upper[j] {
			h = -h
		}

		if params[j]+h < lower[j] {
			// Parameter pinned to a degenerate interval; no slope info.
			for i := range m {
				jac.Set(i, j, 0)
			}

			continue
		}

		copy(perturbed, params)
		perturbed[j] += h

		p.Residuals(shifted, perturbed)

		for i := range m {
			jac.Set(i, j, (shifted[i]-residuals[i])/h)
		}
	}
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ))·δ = −g.
func dampedStep(jtj *mat.Dense, grad *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	n := grad.Len()

	damped := mat.NewDense(n, n, nil)
	damped.Copy(jtj)

	for i := range n {
		d := jtj.At(i, i)
		if d == 0 {
			d = 1
		}

		damped.Set(i, i, jtj.At(i, i)+lambda*d)
	}

	rhs := mat.NewVecDense(n, nil)
	rhs.ScaleVec(-1, grad)

	var step mat.VecDense
	if err := step.SolveVec(damped, rhs); err != nil {
		return nil, false
	}

	return &step, true
}

// covariance inverts JᵀJ at the optimum. A near-singular system still
// yields an estimate; an exactly singular one is ErrCovariance.
func covariance(jac *mat.Dense) (*mat.Dense, error) {
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var cov mat.Dense

	if err := cov.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
			return &cov, nil
		}

		return nil, fmt.Errorf("%w: %v", ErrCovariance, err)
	}

	return &cov, nil
}

func defaults(s *Settings) Settings {
	cfg := Settings{
		MaxIterations: defaultMaxIterations,
		CostTol:       defaultCostTol,
		GradTol:       defaultGradTol,
		StepTol:       defaultStepTol,
	}

	if s == nil {
		return cfg
	}

	if s.MaxIterations > 0 {
		cfg.MaxIterations = s.MaxIterations
	}

	if s.CostTol > 0 {
		cfg.CostTol = s.CostTol
	}

	if s.GradTol > 0 {
		cfg.GradTol = s.GradTol
	}

	if s.StepTol > 0 {
		cfg.StepTol = s.StepTol
	}

	return cfg
}

func maxAbsVec(v *mat.VecDense) float64 {
	out := 0.0
	for i := range v.Len() {
		if a := math.Abs(v.AtVec(i)); a > out {
			out = a
		}
	}

	return out
}

func paramDelta(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return math.Sqrt(sum)
}

func vecNorm(x []float64) float64 {
	return math.Sqrt(vecmath.DotProduct(x, x))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
