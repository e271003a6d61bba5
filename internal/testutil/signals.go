// Package testutil provides deterministic spectral test signals and
// tolerance assertions shared by package tests.
package testutil

import (
	"math"
	"math/rand"
)

// LinSpace returns n evenly spaced values from start to stop inclusive.
func LinSpace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}

	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}

	return out
}

// Gaussian evaluates h·exp(−(x−c)²/(2σ²)) at every x.
func Gaussian(x []float64, height, centre, sigma float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		d := v - centre
		out[i] = height * math.Exp(-d*d/(2*sigma*sigma))
	}

	return out
}

// Polynomial evaluates a polynomial with coefficients in descending
// power order (numpy polyval convention) at every x.
func Polynomial(x []float64, coeffs []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		y := 0.0
		for _, c := range coeffs {
			y = y*v + c
		}
		out[i] = y
	}

	return out
}

// AddInto accumulates src into dst element-wise.
func AddInto(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// DeterministicNoise generates white noise with a fixed seed for
// reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}

	return out
}

// Constant returns a slice of length n filled with value.
func Constant(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}

	return out
}
