// Package baseline locates baseline trough points in a spectrum and
// fits a low-order polynomial through them. The signal is negated so
// troughs of the measured intensity become peaks of the search signal;
// the fitted curve is negated back before subtraction.
package baseline

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-peakfit/dataset"
	"github.com/cwbudde/algo-peakfit/internal/numeric"
	"github.com/cwbudde/algo-peakfit/internal/peaks"
)

// troughProminence is the fixed topographic prominence a negated-signal
// maximum must clear to count as a baseline anchor. Filters
// noise-induced false troughs.
const troughProminence = 0.8

var (
	// ErrInsufficientTroughs is returned when too few trough points
	// survive filtering for the requested polynomial order.
	ErrInsufficientTroughs = errors.New("baseline: not enough trough points for fit order")

	// ErrFittingFailed is returned when the polynomial regression does
	// not converge or degenerates numerically.
	ErrFittingFailed = errors.New("baseline: baseline fitting unsuccessful")
)

// Fit is an uncommitted baseline estimate. Coeffs are polynomial
// coefficients in descending power order over the negated signal;
// Curve evaluates the baseline in the original sign convention.
type Fit struct {
	Order        int
	Coeffs       []float64
	CoeffErrs    []float64
	Troughs      []int
	ReducedChiSq float64
}

// Estimate detects baseline troughs in the active signal and fits a
// polynomial with order coefficients (1 to 3) through them. maxDepth is
// the highest measured intensity a trough may sit at. Point
// uncertainties are not used as fit weights; they only enter the
// reported reduced chi-square.
func Estimate(ds *dataset.Dataset, maxDepth float64, order int) (Fit, error) {
	if order < 1 || order > 3 {
		return Fit{}, fmt.Errorf("baseline: unsupported polynomial order %d", order)
	}

	xs := ds.Xs()
	ys := ds.ActiveYs()
	yerrs := ds.YErrs()

	flipped := make([]float64, len(ys))
	vecmath.ScaleBlock(flipped, ys, -1)

	troughs := peaks.Find(flipped, -maxDepth, troughProminence)

	// At |troughs| == order the residual variance and the reduced
	// chi-square both divide by zero degrees of freedom.
	if len(troughs) <= order {
		return Fit{}, fmt.Errorf("%w: %d troughs, order %d", ErrInsufficientTroughs, len(troughs), order)
	}

	tx := make([]float64, len(troughs))
	ty := make([]float64, len(troughs))
	terr := make([]float64, len(troughs))

	for i, idx := range troughs {
		tx[i] = xs[idx]
		ty[i] = flipped[idx]
		terr[i] = yerrs[idx]
	}

	coeffs, err := solvePolynomial(tx, ty, order)
	if err != nil {
		return Fit{}, err
	}

	coeffErrs, err := coefficientErrors(tx, ty, coeffs)
	if err != nil {
		return Fit{}, err
	}

	chiSq := 0.0
	for i := range tx {
		r := ty[i] - polyval(coeffs, tx[i])
		chiSq += r * r / (terr[i] * terr[i])
	}

	return Fit{
		Order:        order,
		Coeffs:       coeffs,
		CoeffErrs:    coeffErrs,
		Troughs:      troughs,
		ReducedChiSq: chiSq / float64(len(troughs)-order),
	}, nil
}

// Curve evaluates the baseline over xs in the original sign convention.
func (f Fit) Curve(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = -polyval(f.Coeffs, x)
	}

	return out
}

// DisplayCoeffs returns the coefficients negated back to the original
// sign convention, the form shown in baseline reports.
func (f Fit) DisplayCoeffs() []float64 {
	out := make([]float64, len(f.Coeffs))
	vecmath.ScaleBlock(out, f.Coeffs, -1)

	return out
}

// solvePolynomial fits an order-coefficient polynomial to (xs, ys) by
// ordinary least squares, seeded from all-ones.
func solvePolynomial(xs, ys []float64, order int) ([]float64, error) {
	residuals := func(dst, params []float64) {
		for i := range xs {
			dst[i] = polyval(params, xs[i]) - ys[i]
		}
	}

	init := make([]float64, order)
	for i := range init {
		init[i] = 1
	}

	jac := lm.NumJac{Func: residuals}

	problem := lm.LMProblem{
		Dim:        order,
		Size:       len(xs),
		Func:       residuals,
		Jac:        jac.Jac,
		InitParams: init,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}

	result, err := lm.LM(problem, &lm.Settings{Iterations: 200, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFittingFailed, err)
	}

	if !numeric.AllFinite(result.X) {
		return nil, fmt.Errorf("%w: non-finite coefficients", ErrFittingFailed)
	}

	return result.X, nil
}

// coefficientErrors derives per-coefficient standard errors from the
// Vandermonde system, scaling the covariance by the residual variance
// as an unweighted regression does.
func coefficientErrors(xs, ys, coeffs []float64) ([]float64, error) {
	m := len(xs)
	n := len(coeffs)

	vand := mat.NewDense(m, n, nil)

	for i, x := range xs {
		p := 1.0
		for j := n - 1; j >= 0; j-- {
			vand.Set(i, j, p)
			p *= x
		}
	}

	rss := 0.0
	for i := range xs {
		r := ys[i] - polyval(coeffs, xs[i])
		rss += r * r
	}

	var jtj mat.Dense
	jtj.Mul(vand.T(), vand)

	var cov mat.Dense
	if err := cov.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: singular trough system", ErrFittingFailed)
		}
	}

	variance := rss / float64(m-n)

	out := make([]float64, n)
	for i := range n {
		out[i] = math.Sqrt(cov.At(i, i) * variance)
	}

	return out, nil
}

// polyval evaluates a polynomial with coefficients in descending power
// order.
func polyval(coeffs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coeffs {
		y = y*x + c
	}

	return y
}
