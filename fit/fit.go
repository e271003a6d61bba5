// Package fit performs weighted, box-constrained nonlinear
// least-squares fitting of a sum-of-Gaussians model against a cropped
// dataset. Per-point y uncertainties act as true 1-sigma weights, so
// the covariance returned with the parameters is the absolute
// covariance and needs no further scaling.
package fit

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-peakfit/dataset"
	"github.com/cwbudde/algo-peakfit/gauss"
	"github.com/cwbudde/algo-peakfit/internal/levmar"
)

var (
	// ErrBoundsMismatch is returned when declared bounds do not cover
	// every guessed parameter.
	ErrBoundsMismatch = errors.New("fit: bounds do not cover guess vector")

	// ErrConvergence is returned when the optimizer exhausts its
	// iteration budget or the guess is incompatible with its bounds.
	ErrConvergence = errors.New("fit: gaussian fitting unsuccessful")

	// ErrCovariance is returned when the parameter covariance cannot
	// be estimated; the fit result is discarded.
	ErrCovariance = errors.New("fit: could not estimate covariance of the parameters")
)

// Bounds holds per-parameter box constraints in guess order
// [h0, c0, s0, h1, ...]. Nil slices mean unbounded. Bounds may be
// declared for more components than are guessed; only the leading
// entries matching the guess length are used.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Option tunes a fit.
type Option func(*settings)

type settings struct {
	maxIterations int
}

// WithMaxIterations caps the optimizer iteration budget.
func WithMaxIterations(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// Gaussians fits the summed Gaussian model described by the flat guess
// vector to the region of interest. It returns the fitted parameters
// and their absolute covariance matrix.
func Gaussians(roi *dataset.Dataset, guess []float64, b Bounds, opts ...Option) ([]float64, *mat.Dense, error) {
	if len(guess) == 0 || len(guess)%3 != 0 {
		return nil, nil, fmt.Errorf("%w: guess vector length %d is not a multiple of 3", ErrConvergence, len(guess))
	}

	if b.Lower != nil && len(b.Lower) < len(guess) {
		return nil, nil, fmt.Errorf("%w: %d lower bounds for %d parameters", ErrBoundsMismatch, len(b.Lower), len(guess))
	}

	if b.Upper != nil && len(b.Upper) < len(guess) {
		return nil, nil, fmt.Errorf("%w: %d upper bounds for %d parameters", ErrBoundsMismatch, len(b.Upper), len(guess))
	}

	var cfg settings
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	xs := roi.Xs()
	ys := roi.ActiveYs()
	yerrs := roi.YErrs()

	problem := levmar.Problem{
		NumPoints: len(xs),
		Lower:     b.Lower,
		Upper:     b.Upper,
		Residuals: func(dst, params []float64) {
			for i := range xs {
				dst[i] = (ys[i] - gauss.EvalMulti(xs[i], params)) / yerrs[i]
			}
		},
	}

	var solverSettings *levmar.Settings
	if cfg.maxIterations > 0 {
		solverSettings = &levmar.Settings{MaxIterations: cfg.maxIterations}
	}

	result, err := levmar.Solve(problem, guess, solverSettings)
	if err != nil {
		switch {
		case errors.Is(err, levmar.ErrCovariance):
			return nil, nil, fmt.Errorf("%w: %v", ErrCovariance, err)
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrConvergence, err)
		}
	}

	return result.Params, result.Covariance, nil
}
