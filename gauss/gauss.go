// Package gauss evaluates single and summed Gaussian profiles, builds
// optimizer guess vectors from user entries, and converts fitted
// parameters into reportable peak quantities.
package gauss

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// fwhmFactor converts a Gaussian sigma to its full width at half
// maximum: FWHM = 2·sqrt(2·ln2)·sigma.
var fwhmFactor = 2 * math.Sqrt(2*math.Ln2)

// ErrInvalidGuess is returned when a guess entry field cannot be parsed
// as a number.
var ErrInvalidGuess = errors.New("gauss: invalid guess entry")

// Eval evaluates a single Gaussian h·exp(−(x−c)²/(2σ²)).
func Eval(x, height, centre, sigma float64) float64 {
	d := x - centre
	return height * math.Exp(-d*d/(2*sigma*sigma))
}

// EvalMulti evaluates the sum of Gaussians described by the flat
// parameter vector [h0, c0, σ0, h1, c1, σ1, ...] at x.
func EvalMulti(x float64, params []float64) float64 {
	y := 0.0
	for i := 0; i+2 < len(params); i += 3 {
		y += Eval(x, params[i], params[i+1], params[i+2])
	}

	return y
}

// Curve evaluates the summed model over every x.
func Curve(xs []float64, params []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = EvalMulti(x, params)
	}

	return out
}

// SigmaToFWHM converts a width parameter to full width at half maximum.
func SigmaToFWHM(sigma float64) float64 { return fwhmFactor * sigma }

// FWHMToSigma converts a full width at half maximum to the internal
// width parameter.
func FWHMToSigma(fwhm float64) float64 { return fwhm / fwhmFactor }

// Entry is one user-entered component guess. Fields are raw text: a
// component with any blank field is excluded from the model rather
// than treated as an error.
type Entry struct {
	Centre string
	Height string
	FWHM   string
}

// BuildGuess converts ordered entries into the flat initial parameter
// vector [h0, c0, σ0, h1, c1, σ1, ...]. Entries with any blank field
// are skipped; a non-numeric field in a complete entry is
// ErrInvalidGuess. Entry order is the canonical component order for
// bounds, results and plotting.
func BuildGuess(entries []Entry) ([]float64, error) {
	var guess []float64

	for i, e := range entries {
		if e.Centre == "" || e.Height == "" || e.FWHM == "" {
			continue
		}

		height, err := parseField(i, "height", e.Height)
		if err != nil {
			return nil, err
		}

		centre, err := parseField(i, "centre", e.Centre)
		if err != nil {
			return nil, err
		}

		fwhm, err := parseField(i, "fwhm", e.FWHM)
		if err != nil {
			return nil, err
		}

		guess = append(guess, height, centre, FWHMToSigma(fwhm))
	}

	return guess, nil
}

func parseField(idx int, name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: entry %d: %s %q is not a number", ErrInvalidGuess, idx+1, name, raw)
	}

	return v, nil
}
