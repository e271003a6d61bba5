// Package smooth provides an optional FFT low-pass denoise of the
// active signal, useful to stabilise trough detection on noisy
// spectra before baseline estimation.
package smooth

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ErrCutoff is returned for a cutoff outside (0, 1].
var ErrCutoff = errors.New("smooth: cutoff must be in (0, 1]")

// LowPass returns a copy of y with frequency content above the cutoff
// removed. cutoff is the retained fraction of the Nyquist band; 1
// returns the signal unchanged apart from FFT round-trip noise.
func LowPass(y []float64, cutoff float64) ([]float64, error) {
	if cutoff <= 0 || cutoff > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrCutoff, cutoff)
	}

	n := len(y)
	if n < 2 {
		out := make([]float64, n)
		copy(out, y)

		return out, nil
	}

	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("smooth: %w", err)
	}

	in := make([]complex128, n)
	for i, v := range y {
		in[i] = complex(v, 0)
	}

	spectrum := make([]complex128, n)
	if err := plan.Forward(spectrum, in); err != nil {
		return nil, fmt.Errorf("smooth: forward FFT: %w", err)
	}

	// Zero every bin above the cutoff, keeping the spectrum hermitian
	// so the inverse transform stays real.
	keep := int(cutoff * float64(n) / 2)

	for k := keep + 1; k <= n-keep-1; k++ {
		spectrum[k] = 0
	}

	if err := plan.Inverse(spectrum, spectrum); err != nil {
		return nil, fmt.Errorf("smooth: inverse FFT: %w", err)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = real(spectrum[i])
	}

	return out, nil
}
