// Package dataset provides the ordered sample container used throughout
// the fitting pipeline: CSV ingestion, region-of-interest cropping, and
// baseline subtraction with a single-level undo slot.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// yErrEpsilon replaces a loaded y uncertainty of exactly zero so the
// value stays usable as a fit weight.
const yErrEpsilon = 1e-10

var (
	// ErrInputFormat is returned when an imported row has the wrong
	// column count or a non-numeric field. Imports are all-or-nothing.
	ErrInputFormat = errors.New("dataset: malformed input data")

	// ErrInvalidRange is returned for an unparseable, one-sided,
	// inverted or degenerate region-of-interest bound pair.
	ErrInvalidRange = errors.New("dataset: invalid region bounds")
)

// Sample is one measured point: position, intensity and their
// uncertainties.
type Sample struct {
	X    float64
	XErr float64
	Y    float64
	YErr float64
}

// Dataset holds samples sorted ascending by X. The original Y track is
// immutable after construction; the active Y track is what baseline
// subtraction mutates. A single pre-subtraction copy is retained for
// undo.
type Dataset struct {
	x    []float64
	xErr []float64
	yErr []float64

	originalY []float64
	activeY   []float64

	shadowY    []float64
	subtracted bool
}

// New builds a Dataset from samples. Samples are stably sorted
// ascending by X and zero Y uncertainties are replaced with a fixed
// epsilon.
func New(samples []Sample) *Dataset {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	d := &Dataset{
		x:         make([]float64, len(sorted)),
		xErr:      make([]float64, len(sorted)),
		yErr:      make([]float64, len(sorted)),
		originalY: make([]float64, len(sorted)),
		activeY:   make([]float64, len(sorted)),
	}

	for i, s := range sorted {
		d.x[i] = s.X
		d.xErr[i] = s.XErr
		d.originalY[i] = s.Y
		d.activeY[i] = s.Y

		if s.YErr == 0 {
			d.yErr[i] = yErrEpsilon
		} else {
			d.yErr[i] = s.YErr
		}
	}

	return d
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.x) }

// Xs returns a copy of the X column.
func (d *Dataset) Xs() []float64 { return clone(d.x) }

// XErrs returns a copy of the X uncertainty column.
func (d *Dataset) XErrs() []float64 { return clone(d.xErr) }

// YErrs returns a copy of the Y uncertainty column.
func (d *Dataset) YErrs() []float64 { return clone(d.yErr) }

// OriginalYs returns a copy of the Y column as loaded.
func (d *Dataset) OriginalYs() []float64 { return clone(d.originalY) }

// ActiveYs returns a copy of the working Y column.
func (d *Dataset) ActiveYs() []float64 { return clone(d.activeY) }

// Subtracted reports whether a baseline is currently committed.
func (d *Dataset) Subtracted() bool { return d.subtracted }

// SetActiveYs replaces the working Y column, e.g. with a smoothed copy.
// The undo slot is not involved; reloading restores the original track.
func (d *Dataset) SetActiveYs(y []float64) error {
	if len(y) != len(d.activeY) {
		return fmt.Errorf("dataset: active column length %d does not match %d samples", len(y), len(d.x))
	}

	copy(d.activeY, y)

	return nil
}

// ApplyBaseline subtracts curve point-wise from the active Y column and
// marks the dataset baseline-subtracted. The pre-subtraction column is
// retained in a single undo slot; committing again overwrites it.
func (d *Dataset) ApplyBaseline(curve []float64) error {
	if len(curve) != len(d.activeY) {
		return fmt.Errorf("dataset: baseline length %d does not match %d samples", len(curve), len(d.x))
	}

	d.shadowY = clone(d.activeY)

	neg := make([]float64, len(curve))
	vecmath.ScaleBlock(neg, curve, -1)
	vecmath.AddBlockInPlace(d.activeY, neg)

	d.subtracted = true

	return nil
}

// RevertBaseline restores the active Y column retained by the last
// ApplyBaseline and clears the baseline-subtracted flag. With no
// retained column it is a no-op.
func (d *Dataset) RevertBaseline() {
	if d.shadowY == nil {
		return
	}

	copy(d.activeY, d.shadowY)
	d.shadowY = nil
	d.subtracted = false
}

// Crop returns a new dataset restricted to lower < x < upper. Samples
// exactly at a bound are excluded. With both bounds nil the full active
// dataset is returned as a copy. A one-sided, inverted or degenerate
// pair is ErrInvalidRange.
func (d *Dataset) Crop(lower, upper *float64) (*Dataset, error) {
	if lower == nil && upper == nil {
		return New(d.activeSamples()), nil
	}

	if lower == nil || upper == nil {
		return nil, fmt.Errorf("%w: both bounds required", ErrInvalidRange)
	}

	if *lower >= *upper {
		return nil, fmt.Errorf("%w: lower %v must be below upper %v", ErrInvalidRange, *lower, *upper)
	}

	var kept []Sample

	for i, x := range d.x {
		if x > *lower && x < *upper {
			kept = append(kept, Sample{X: x, XErr: d.xErr[i], Y: d.activeY[i], YErr: d.yErr[i]})
		}
	}

	return New(kept), nil
}

// ParseBound converts a region bound entry to an optional float. An
// empty string means the bound is absent.
func ParseBound(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidRange, s)
	}

	return &v, nil
}

func (d *Dataset) activeSamples() []Sample {
	out := make([]Sample, len(d.x))
	for i := range d.x {
		out[i] = Sample{X: d.x[i], XErr: d.xErr[i], Y: d.activeY[i], YErr: d.yErr[i]}
	}

	return out
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)

	return out
}
