package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-peakfit/baseline"
	"github.com/cwbudde/algo-peakfit/dataset"
	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/gauss"
	"github.com/cwbudde/algo-peakfit/internal/testutil"
)

// fourPeakDataset builds a spectrum of four narrow Gaussians on a
// linear baseline. The three gaps between the peaks return to the
// baseline and yield exactly three prominent troughs; the regions
// outside the outer peaks only touch the boundary and are excluded.
func fourPeakDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	xs := testutil.LinSpace(0, 10, 501)
	ys := testutil.Polynomial(xs, []float64{0.05, 1})
	testutil.AddInto(ys, testutil.Gaussian(xs, 10, 2, 0.2))
	testutil.AddInto(ys, testutil.Gaussian(xs, 8, 4.5, 0.2))
	testutil.AddInto(ys, testutil.Gaussian(xs, 6, 7, 0.2))
	testutil.AddInto(ys, testutil.Gaussian(xs, 5, 9.3, 0.2))

	samples := make([]dataset.Sample, len(xs))
	for i := range xs {
		samples[i] = dataset.Sample{X: xs[i], Y: ys[i], YErr: 0.1}
	}

	return dataset.New(samples)
}

func fourPeakEntries() []gauss.Entry {
	return []gauss.Entry{
		{Centre: "2", Height: "10", FWHM: "0.471"},
		{Centre: "4.5", Height: "8", FWHM: "0.471"},
		{Centre: "7", Height: "6", FWHM: "0.471"},
		{Centre: "9.3", Height: "5", FWHM: "0.471"},
	}
}

func requireStage(t *testing.T, c *Controller, want Stage) {
	t.Helper()

	if got := c.Stage(); got != want {
		t.Fatalf("stage: got %v, want %v", got, want)
	}
}

func TestControllerEndToEnd(t *testing.T) {
	c := New()
	requireStage(t, c, StageEmpty)

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	requireStage(t, c, StageLoaded)

	preview, err := c.EstimateBaseline(2, 2)
	if err != nil {
		t.Fatalf("EstimateBaseline: %v", err)
	}
	requireStage(t, c, StageBaselinePreviewed)

	if len(preview.Troughs) != 3 {
		t.Fatalf("troughs: got %d, want 3", len(preview.Troughs))
	}

	display := preview.DisplayCoeffs()
	testutil.RequireNearlyEqual(t, display[0], 0.05, 0.05)
	testutil.RequireNearlyEqual(t, display[1], 1, 0.1)

	if err := c.SubtractBaseline(); err != nil {
		t.Fatalf("SubtractBaseline: %v", err)
	}
	requireStage(t, c, StageBaselineCommitted)

	if err := c.SelectRegion("", ""); err != nil {
		t.Fatalf("SelectRegion: %v", err)
	}
	requireStage(t, c, StageRegionSelected)

	records, err := c.Fit(fourPeakEntries(), fit.Bounds{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	requireStage(t, c, StageFitted)

	if len(records) != 4 {
		t.Fatalf("records: got %d, want 4", len(records))
	}

	for i, centre := range []float64{2, 4.5, 7, 9.3} {
		testutil.RequireNearlyEqual(t, records[i].Centre, centre, 0.05)
	}
}

func TestEstimateInvalidatesDownstreamResults(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if _, err := c.EstimateBaseline(2, 2); err != nil {
		t.Fatalf("EstimateBaseline: %v", err)
	}

	if err := c.SubtractBaseline(); err != nil {
		t.Fatalf("SubtractBaseline: %v", err)
	}

	if err := c.SelectRegion("", ""); err != nil {
		t.Fatalf("SelectRegion: %v", err)
	}

	if _, err := c.Fit(fourPeakEntries(), fit.Bounds{}); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// Re-estimating is an earlier-stage mutation: region and records
	// must be discarded.
	if _, err := c.EstimateBaseline(2, 2); err != nil {
		t.Fatalf("re-estimate: %v", err)
	}

	requireStage(t, c, StageBaselinePreviewed)

	if c.Records() != nil {
		t.Fatal("records survived re-estimate")
	}

	if c.Region() != nil {
		t.Fatal("region survived re-estimate")
	}
}

func TestFailedEstimateLeavesStateUntouched(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	// No sample sits at or below 0.5, so no trough survives.
	if _, err := c.EstimateBaseline(0.5, 2); !errors.Is(err, baseline.ErrInsufficientTroughs) {
		t.Fatalf("want ErrInsufficientTroughs, got %v", err)
	}

	requireStage(t, c, StageLoaded)
}

func TestEstimateParameterValidation(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if _, err := c.EstimateBaseline(math.NaN(), 2); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("NaN depth: want ErrInvalidParameter, got %v", err)
	}

	for _, order := range []int{0, 4} {
		if _, err := c.EstimateBaseline(2, order); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("order %d: want ErrInvalidParameter, got %v", order, err)
		}
	}

	requireStage(t, c, StageLoaded)
}

func TestRevertBaseline(t *testing.T) {
	c := New()
	ds := fourPeakDataset(t)
	original := ds.ActiveYs()

	if err := c.LoadDataset(ds); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	// Nothing committed: revert is a no-op.
	if err := c.RevertBaseline(); err != nil {
		t.Fatalf("RevertBaseline: %v", err)
	}
	requireStage(t, c, StageLoaded)

	if _, err := c.EstimateBaseline(2, 2); err != nil {
		t.Fatalf("EstimateBaseline: %v", err)
	}

	if err := c.SubtractBaseline(); err != nil {
		t.Fatalf("SubtractBaseline: %v", err)
	}

	if err := c.RevertBaseline(); err != nil {
		t.Fatalf("RevertBaseline: %v", err)
	}

	requireStage(t, c, StageLoaded)
	testutil.RequireSliceNearlyEqual(t, c.Dataset().ActiveYs(), original, 0)
}

func TestSmoothForbiddenAfterCommit(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if _, err := c.EstimateBaseline(2, 2); err != nil {
		t.Fatalf("EstimateBaseline: %v", err)
	}

	if err := c.SubtractBaseline(); err != nil {
		t.Fatalf("SubtractBaseline: %v", err)
	}

	if err := c.Smooth(0.9); !errors.Is(err, ErrStage) {
		t.Fatalf("want ErrStage, got %v", err)
	}
}

func TestSmoothDiscardsPreview(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if _, err := c.EstimateBaseline(2, 2); err != nil {
		t.Fatalf("EstimateBaseline: %v", err)
	}

	if err := c.Smooth(0.9); err != nil {
		t.Fatalf("Smooth: %v", err)
	}

	requireStage(t, c, StageLoaded)

	if err := c.SubtractBaseline(); !errors.Is(err, ErrStage) {
		t.Fatalf("want ErrStage after smoothing, got %v", err)
	}
}

func TestSelectRegionCropsStrictly(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if err := c.SelectRegion("2", "4"); err != nil {
		t.Fatalf("SelectRegion: %v", err)
	}

	requireStage(t, c, StageRegionSelected)

	for _, x := range c.Region().Xs() {
		if x <= 2 || x >= 4 {
			t.Fatalf("region sample %v outside exclusive (2, 4)", x)
		}
	}
}

func TestSelectRegionRejectsBadBounds(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if err := c.SelectRegion("5", "1"); !errors.Is(err, dataset.ErrInvalidRange) {
		t.Fatalf("inverted: want ErrInvalidRange, got %v", err)
	}

	if err := c.SelectRegion("abc", ""); !errors.Is(err, dataset.ErrInvalidRange) {
		t.Fatalf("text: want ErrInvalidRange, got %v", err)
	}
}

func TestValidateGuessesSkipsIncompleteEntries(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	curves, err := c.ValidateGuesses([]gauss.Entry{
		{Centre: "2", Height: "10", FWHM: "0.471"},
		{Centre: "4.5", Height: "", FWHM: "0.471"},
	})
	if err != nil {
		t.Fatalf("ValidateGuesses: %v", err)
	}

	requireStage(t, c, StageGuessesValidated)

	if len(curves) != 1 {
		t.Fatalf("curves: got %d, want 1", len(curves))
	}

	if len(curves[0]) != c.Region().Len() {
		t.Fatalf("curve length %d does not match region %d", len(curves[0]), c.Region().Len())
	}
}

func TestValidateGuessesRejectsAllBlank(t *testing.T) {
	c := New()

	if err := c.LoadDataset(fourPeakDataset(t)); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if _, err := c.ValidateGuesses([]gauss.Entry{{}}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestOperationsBeforeLoad(t *testing.T) {
	c := New()

	if _, err := c.EstimateBaseline(2, 2); !errors.Is(err, ErrStage) {
		t.Fatalf("EstimateBaseline: want ErrStage, got %v", err)
	}

	if err := c.SubtractBaseline(); !errors.Is(err, ErrStage) {
		t.Fatalf("SubtractBaseline: want ErrStage, got %v", err)
	}

	if err := c.Smooth(0.5); !errors.Is(err, ErrStage) {
		t.Fatalf("Smooth: want ErrStage, got %v", err)
	}

	if err := c.SelectRegion("", ""); !errors.Is(err, ErrStage) {
		t.Fatalf("SelectRegion: want ErrStage, got %v", err)
	}

	if _, err := c.Fit(fourPeakEntries(), fit.Bounds{}); !errors.Is(err, ErrStage) {
		t.Fatalf("Fit: want ErrStage, got %v", err)
	}

	if err := c.RevertBaseline(); err != nil {
		t.Fatalf("RevertBaseline should be a no-op, got %v", err)
	}
}

func TestLoadRejectsEmptyDataset(t *testing.T) {
	c := New()

	if err := c.LoadDataset(dataset.New(nil)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}
