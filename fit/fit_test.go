package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-peakfit/dataset"
	"github.com/cwbudde/algo-peakfit/gauss"
	"github.com/cwbudde/algo-peakfit/internal/testutil"
)

func twoGaussianDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()

	xs := testutil.LinSpace(0, 10, n)
	ys := testutil.Gaussian(xs, 10, 3, 0.8)
	testutil.AddInto(ys, testutil.Gaussian(xs, 6, 7, 1.0))

	samples := make([]dataset.Sample, len(xs))
	for i := range xs {
		samples[i] = dataset.Sample{X: xs[i], Y: ys[i], YErr: 0.1}
	}

	return dataset.New(samples)
}

func TestGaussiansRecoverTruthFromTrueSeed(t *testing.T) {
	roi := twoGaussianDataset(t, 101)

	truth := []float64{10, 3, 0.8, 6, 7, 1.0}

	params, cov, err := Gaussians(roi, truth, Bounds{})
	if err != nil {
		t.Fatalf("Gaussians: %v", err)
	}

	testutil.RequireSliceNearlyEqual(t, params, truth, 1e-6)

	for i := range len(truth) {
		if cov.At(i, i) < 0 {
			t.Fatalf("covariance diagonal %d negative: %v", i, cov.At(i, i))
		}
	}
}

func TestGaussiansConcreteTwoPeakScenario(t *testing.T) {
	// Dataset of 11 integer positions: two Gaussians on a linear
	// baseline, the baseline subtracted before fitting.
	xs := testutil.LinSpace(0, 10, 11)
	ys := testutil.Gaussian(xs, 10, 3, 0.8)
	testutil.AddInto(ys, testutil.Gaussian(xs, 6, 7, 1.0))
	testutil.AddInto(ys, testutil.Polynomial(xs, []float64{0.05, 1}))

	samples := make([]dataset.Sample, len(xs))
	for i := range xs {
		samples[i] = dataset.Sample{X: xs[i], Y: ys[i], YErr: 0.1}
	}

	ds := dataset.New(samples)

	if err := ds.ApplyBaseline(testutil.Polynomial(xs, []float64{0.05, 1})); err != nil {
		t.Fatalf("ApplyBaseline: %v", err)
	}

	roi, err := ds.Crop(nil, nil)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}

	guess, err := gauss.BuildGuess([]gauss.Entry{
		{Centre: "3", Height: "10", FWHM: "1.88"},
		{Centre: "7", Height: "6", FWHM: "2.35"},
	})
	if err != nil {
		t.Fatalf("BuildGuess: %v", err)
	}

	params, cov, err := Gaussians(roi, guess, Bounds{})
	if err != nil {
		t.Fatalf("Gaussians: %v", err)
	}

	records := gauss.Extract(params, cov)
	if len(records) != 2 {
		t.Fatalf("want 2 records, got %d", len(records))
	}

	testutil.RequireNearlyEqual(t, records[0].Centre, 3, 0.05)
	testutil.RequireNearlyEqual(t, records[1].Centre, 7, 0.05)
}

func TestGaussiansBoundsSlicing(t *testing.T) {
	roi := twoGaussianDataset(t, 101)

	guess := []float64{10, 3, 0.8, 6, 7, 1.0}

	// Bounds declared for five components; only the first six pairs
	// apply to a two-component guess.
	lower := make([]float64, 15)
	upper := make([]float64, 15)

	for i := range 15 {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}

	// Make the unused tail pairs nonsense; they must be ignored.
	for i := 6; i < 15; i++ {
		lower[i] = 5
		upper[i] = -5
	}

	params, _, err := Gaussians(roi, guess, Bounds{Lower: lower, Upper: upper})
	if err != nil {
		t.Fatalf("Gaussians: %v", err)
	}

	testutil.RequireSliceNearlyEqual(t, params, guess, 1e-6)
}

func TestGaussiansBoundsMismatch(t *testing.T) {
	roi := twoGaussianDataset(t, 51)

	guess := []float64{10, 3, 0.8, 6, 7, 1.0}

	_, _, err := Gaussians(roi, guess, Bounds{Lower: []float64{0, 0, 0}, Upper: []float64{1, 1, 1}})
	if !errors.Is(err, ErrBoundsMismatch) {
		t.Fatalf("want ErrBoundsMismatch, got %v", err)
	}
}

func TestGaussiansGuessOutsideBounds(t *testing.T) {
	roi := twoGaussianDataset(t, 51)

	guess := []float64{10, 3, 0.8}
	lower := []float64{0, 0, 0}
	upper := []float64{5, 10, 10}

	_, _, err := Gaussians(roi, guess, Bounds{Lower: lower, Upper: upper})
	if !errors.Is(err, ErrConvergence) {
		t.Fatalf("want ErrConvergence, got %v", err)
	}
}

func TestGaussiansRejectsEmptyGuess(t *testing.T) {
	roi := twoGaussianDataset(t, 51)

	if _, _, err := Gaussians(roi, nil, Bounds{}); !errors.Is(err, ErrConvergence) {
		t.Fatalf("want ErrConvergence, got %v", err)
	}
}

func TestGaussiansCovarianceFailure(t *testing.T) {
	// Identically zero data with a zero-height component: the centre
	// and width gradients vanish and the covariance is not estimable.
	xs := testutil.LinSpace(0, 10, 51)

	samples := make([]dataset.Sample, len(xs))
	for i := range xs {
		samples[i] = dataset.Sample{X: xs[i], Y: 0, YErr: 0.1}
	}

	roi := dataset.New(samples)

	_, _, err := Gaussians(roi, []float64{0, 5, 1}, Bounds{})
	if !errors.Is(err, ErrCovariance) {
		t.Fatalf("want ErrCovariance, got %v", err)
	}
}

func TestGaussiansIterationCap(t *testing.T) {
	roi := twoGaussianDataset(t, 101)

	// A single iteration cannot reach the optimum from a remote seed.
	_, _, err := Gaussians(roi, []float64{1, 1, 3, 1, 9, 3}, Bounds{}, WithMaxIterations(1))
	if !errors.Is(err, ErrConvergence) {
		t.Fatalf("want ErrConvergence, got %v", err)
	}
}
