// Package peaks implements a 1-D local-maxima search with height and
// topographic-prominence filtering, used to locate baseline anchor
// points in a negated signal.
package peaks

// Find returns the indices of local maxima in y whose value is at least
// minHeight and whose topographic prominence is at least minProminence.
// Indices are ascending.
//
// A flat plateau counts as a single maximum located at the plateau
// midpoint (rounded down). Prominence is the vertical drop from the
// peak to the higher of the two interval minima, where each interval
// extends from the peak to the nearest strictly higher sample on that
// side, or to the signal boundary.
func Find(y []float64, minHeight, minProminence float64) []int {
	maxima := localMaxima(y)

	out := make([]int, 0, len(maxima))

	for _, idx := range maxima {
		if y[idx] < minHeight {
			continue
		}

		if prominence(y, idx) < minProminence {
			continue
		}

		out = append(out, idx)
	}

	return out
}

// localMaxima finds all strict local maxima, treating plateaus as a
// single maximum at their midpoint. Boundary samples never qualify.
func localMaxima(y []float64) []int {
	var out []int

	i := 1
	iMax := len(y) - 1

	for i < iMax {
		if y[i-1] >= y[i] {
			i++
			continue
		}

		// Walk a potential plateau.
		ahead := i + 1
		for ahead < iMax && y[ahead] == y[i] {
			ahead++
		}

		if y[ahead] < y[i] {
			out = append(out, (i+ahead-1)/2)
			i = ahead
			continue
		}

		i = ahead
	}

	return out
}

// prominence computes the topographic prominence of the maximum at idx.
func prominence(y []float64, idx int) float64 {
	peak := y[idx]

	leftMin := peak
	for i := idx - 1; i >= 0; i-- {
		if y[i] > peak {
			break
		}

		if y[i] < leftMin {
			leftMin = y[i]
		}
	}

	rightMin := peak
	for i := idx + 1; i < len(y); i++ {
		if y[i] > peak {
			break
		}

		if y[i] < rightMin {
			rightMin = y[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}

	return peak - base
}
