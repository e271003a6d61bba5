// Package pipeline sequences the fitting stages over a single active
// dataset: load, optional smoothing, baseline estimation and
// subtraction, region selection, guess validation and Gaussian
// fitting. Operations are gated by a linear stage machine; mutating an
// earlier stage discards every downstream result.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/cwbudde/algo-peakfit/baseline"
	"github.com/cwbudde/algo-peakfit/dataset"
	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/gauss"
	"github.com/cwbudde/algo-peakfit/smooth"
)

// Stage identifies how far the pipeline has progressed.
type Stage int

const (
	StageEmpty Stage = iota
	StageLoaded
	StageBaselinePreviewed
	StageBaselineCommitted
	StageRegionSelected
	StageGuessesValidated
	StageFitted
)

var stageNames = map[Stage]string{
	StageEmpty:             "empty",
	StageLoaded:            "loaded",
	StageBaselinePreviewed: "baseline-previewed",
	StageBaselineCommitted: "baseline-committed",
	StageRegionSelected:    "region-selected",
	StageGuessesValidated:  "guesses-validated",
	StageFitted:            "fitted",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}

	return fmt.Sprintf("stage(%d)", int(s))
}

var (
	// ErrInvalidParameter is returned for a non-numeric or out-of-range
	// operation parameter.
	ErrInvalidParameter = errors.New("pipeline: invalid parameter")

	// ErrStage is returned when an operation lacks the data an earlier
	// stage should have produced.
	ErrStage = errors.New("pipeline: operation not available yet")

	// ErrBusy is returned when an operation is issued while another is
	// in flight for the same dataset.
	ErrBusy = errors.New("pipeline: operation already in flight")
)

// Controller owns the single active dataset and runs every pipeline
// operation to completion under a single-flight lock.
type Controller struct {
	mu sync.Mutex

	ds      *dataset.Dataset
	stage   Stage
	preview *baseline.Fit

	roi      *dataset.Dataset
	roiLower *float64
	roiUpper *float64

	guess   []float64
	records []gauss.Record
}

// New returns an empty controller.
func New() *Controller {
	return &Controller{stage: StageEmpty}
}

// Load imports a CSV dataset from path, replacing any previous dataset
// and discarding all downstream state.
func (c *Controller) Load(path string) error {
	ds, err := dataset.ReadCSVFile(path)
	if err != nil {
		return err
	}

	return c.adopt(ds)
}

// LoadReader imports a CSV dataset from r.
func (c *Controller) LoadReader(r io.Reader) error {
	ds, err := dataset.ReadCSV(r)
	if err != nil {
		return err
	}

	return c.adopt(ds)
}

// LoadDataset adopts an externally produced dataset, e.g. from a
// radial-averaging producer. The dataset must follow the 4-column
// schema contract: sorted by x with strictly positive y uncertainties.
func (c *Controller) LoadDataset(ds *dataset.Dataset) error {
	return c.adopt(ds)
}

func (c *Controller) adopt(ds *dataset.Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("%w: dataset is empty", ErrInvalidParameter)
	}

	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	c.ds = ds
	c.reset(StageLoaded)

	return nil
}

// reset drops every result at or beyond the given stage boundary.
func (c *Controller) reset(stage Stage) {
	c.stage = stage

	if stage < StageBaselinePreviewed {
		c.preview = nil
	}

	if stage < StageRegionSelected {
		c.roi = nil
		c.roiLower = nil
		c.roiUpper = nil
	}

	if stage < StageGuessesValidated {
		c.guess = nil
	}

	if stage < StageFitted {
		c.records = nil
	}
}

// Smooth low-passes the active signal, stabilising trough detection on
// noisy data. It counts as a loaded-stage mutation: any baseline
// preview, region or fit results are discarded. Not permitted once a
// baseline is committed.
func (c *Controller) Smooth(cutoff float64) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	if c.ds == nil {
		return fmt.Errorf("%w: no dataset loaded", ErrStage)
	}

	if c.ds.Subtracted() {
		return fmt.Errorf("%w: smoothing after baseline subtraction", ErrStage)
	}

	smoothed, err := smooth.LowPass(c.ds.ActiveYs(), cutoff)
	if err != nil {
		return err
	}

	if err := c.ds.SetActiveYs(smoothed); err != nil {
		return err
	}

	c.reset(StageLoaded)

	return nil
}

// EstimateBaseline previews a baseline fit without committing it. Any
// previously committed downstream results are discarded; a failed
// estimate leaves the pipeline untouched.
func (c *Controller) EstimateBaseline(maxDepth float64, order int) (baseline.Fit, error) {
	if !c.mu.TryLock() {
		return baseline.Fit{}, ErrBusy
	}
	defer c.mu.Unlock()

	if c.ds == nil {
		return baseline.Fit{}, fmt.Errorf("%w: no dataset loaded", ErrStage)
	}

	if math.IsNaN(maxDepth) {
		return baseline.Fit{}, fmt.Errorf("%w: maximum trough height is not a number", ErrInvalidParameter)
	}

	if order < 1 || order > 3 {
		return baseline.Fit{}, fmt.Errorf("%w: polynomial order must be 1, 2 or 3", ErrInvalidParameter)
	}

	result, err := baseline.Estimate(c.ds, maxDepth, order)
	if err != nil {
		return baseline.Fit{}, err
	}

	c.preview = &result
	c.reset(StageBaselinePreviewed)

	return result, nil
}

// SubtractBaseline commits the previewed baseline into the active
// signal. Committing again without reverting overwrites the single
// undo slot.
func (c *Controller) SubtractBaseline() error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	if c.preview == nil {
		return fmt.Errorf("%w: no baseline previewed", ErrStage)
	}

	curve := c.preview.Curve(c.ds.Xs())

	if err := c.ds.ApplyBaseline(curve); err != nil {
		return err
	}

	c.reset(StageBaselineCommitted)

	return nil
}

// RevertBaseline undoes the last committed subtraction, returning the
// pipeline to the loaded stage. With nothing committed it is a no-op.
func (c *Controller) RevertBaseline() error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	if c.ds == nil || !c.ds.Subtracted() {
		return nil
	}

	c.ds.RevertBaseline()
	c.reset(StageLoaded)

	return nil
}

// SelectRegion crops the analysis window to lower < x < upper, given
// as raw text; two empty strings select the full dataset. Downstream
// guesses and fit results are discarded.
func (c *Controller) SelectRegion(lower, upper string) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	if c.ds == nil {
		return fmt.Errorf("%w: no dataset loaded", ErrStage)
	}

	lo, err := dataset.ParseBound(lower)
	if err != nil {
		return err
	}

	hi, err := dataset.ParseBound(upper)
	if err != nil {
		return err
	}

	roi, err := c.ds.Crop(lo, hi)
	if err != nil {
		return err
	}

	c.roi = roi
	c.roiLower = lo
	c.roiUpper = hi
	c.reset(StageRegionSelected)

	return nil
}

// ValidateGuesses builds the initial parameter vector from ordered
// entries and returns the per-component model curves over the current
// region for preview. Entries with blank fields are skipped.
func (c *Controller) ValidateGuesses(entries []gauss.Entry) ([][]float64, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	if err := c.ensureRegion(); err != nil {
		return nil, err
	}

	guess, err := gauss.BuildGuess(entries)
	if err != nil {
		return nil, err
	}

	if len(guess) == 0 {
		return nil, fmt.Errorf("%w: no complete guess entries", ErrInvalidParameter)
	}

	c.guess = guess
	c.reset(StageGuessesValidated)

	xs := c.roi.Xs()

	curves := make([][]float64, 0, len(guess)/3)
	for i := 0; i+2 < len(guess); i += 3 {
		curves = append(curves, gauss.Curve(xs, guess[i:i+3]))
	}

	return curves, nil
}

// Fit validates entries, then runs the bounded weighted fit over the
// current region. Previous fit records are discarded as soon as the
// attempt starts; on success fresh records are produced in guess
// order.
func (c *Controller) Fit(entries []gauss.Entry, bounds fit.Bounds, opts ...fit.Option) ([]gauss.Record, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	if err := c.ensureRegion(); err != nil {
		return nil, err
	}

	guess, err := gauss.BuildGuess(entries)
	if err != nil {
		return nil, err
	}

	if len(guess) == 0 {
		return nil, fmt.Errorf("%w: no complete guess entries", ErrInvalidParameter)
	}

	c.guess = guess
	c.reset(StageGuessesValidated)

	params, cov, err := fit.Gaussians(c.roi, guess, bounds, opts...)
	if err != nil {
		return nil, err
	}

	c.records = gauss.Extract(params, cov)
	c.stage = StageFitted

	return c.records, nil
}

// ensureRegion defaults the region to the full active dataset when no
// explicit selection was made.
func (c *Controller) ensureRegion() error {
	if c.ds == nil {
		return fmt.Errorf("%w: no dataset loaded", ErrStage)
	}

	if c.roi != nil {
		return nil
	}

	roi, err := c.ds.Crop(nil, nil)
	if err != nil {
		return err
	}

	c.roi = roi
	if c.stage < StageRegionSelected {
		c.stage = StageRegionSelected
	}

	return nil
}

// Stage reports the current pipeline stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stage
}

// Dataset returns the active dataset, or nil before the first load.
func (c *Controller) Dataset() *dataset.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ds
}

// Region returns the current region of interest, or nil before
// selection.
func (c *Controller) Region() *dataset.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.roi
}

// Records returns the fit records of the most recent successful fit.
func (c *Controller) Records() []gauss.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.records
}
