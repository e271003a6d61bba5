// Command peakfit extracts the parameters of overlapping Gaussian
// spectral peaks from 4-column CSV data (x, x_err, y, y_err).
//
// Usage:
//
//	peakfit baseline --input data.csv --order 2 --max-depth 1.5
//	peakfit fit --input data.csv --config fit.yaml --output results.csv
//
// The baseline command previews the fitted baseline polynomial; fit
// runs the whole pipeline and reports one height/centre/FWHM triple
// with uncertainties per component.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
