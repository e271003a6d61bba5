package gauss

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Record holds the reportable quantities of one fitted component.
type Record struct {
	Height    float64
	HeightErr float64
	Centre    float64
	CentreErr float64
	FWHM      float64
	FWHMErr   float64
}

// Extract converts the fitted parameter vector and its covariance into
// one Record per component, in guess order. Standard errors are
// sqrt(diag(cov)); if any diagonal entry is negative the raw diagonal
// entries are reported unrooted, signalling an ill-conditioned
// estimate without failing the call. FWHM uncertainty is propagated
// from sigma's marginal standard error only.
func Extract(params []float64, cov mat.Matrix) []Record {
	n := len(params)

	perr := make([]float64, n)
	rooted := true

	for i := range n {
		if cov.At(i, i) < 0 {
			rooted = false
			break
		}
	}

	for i := range n {
		if rooted {
			perr[i] = math.Sqrt(cov.At(i, i))
		} else {
			perr[i] = cov.At(i, i)
		}
	}

	records := make([]Record, 0, n/3)

	for i := 0; i+2 < n; i += 3 {
		records = append(records, Record{
			Height:    params[i],
			HeightErr: perr[i],
			Centre:    params[i+1],
			CentreErr: perr[i+1],
			FWHM:      SigmaToFWHM(params[i+2]),
			FWHMErr:   SigmaToFWHM(perr[i+2]),
		})
	}

	return records
}

// WriteRecords writes one comma-delimited row per component:
// height, height_err, centre, centre_err, fwhm, fwhm_err.
func WriteRecords(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	for _, r := range records {
		row := []string{
			formatFloat(r.Height),
			formatFloat(r.HeightErr),
			formatFloat(r.Centre),
			formatFloat(r.CentreErr),
			formatFloat(r.FWHM),
			formatFloat(r.FWHMErr),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("gauss: writing records: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("gauss: writing records: %w", err)
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
