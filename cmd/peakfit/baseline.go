package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-peakfit/pipeline"
)

// coeffNames labels polynomial coefficients the way the baseline
// report presents them: y = a, y = ax + b, y = ax² + bx + c.
var coeffNames = []string{"a", "b", "c"}

func newBaselineCmd() *cobra.Command {
	var (
		input    string
		order    int
		maxDepth float64
		cutoff   float64
	)

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Preview a polynomial baseline fitted through signal troughs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl := pipeline.New()

			if err := ctrl.Load(input); err != nil {
				return err
			}

			slog.Debug("dataset loaded", "path", input, "samples", ctrl.Dataset().Len())

			if cutoff > 0 {
				if err := ctrl.Smooth(cutoff); err != nil {
					return err
				}

				slog.Debug("signal smoothed", "cutoff", cutoff)
			}

			result, err := ctrl.EstimateBaseline(maxDepth, order)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			display := result.DisplayCoeffs()
			for i, c := range display {
				fmt.Fprintf(w, "%s:\t%.3f ± %.3f\n", coeffNames[i], c, result.CoeffErrs[i])
			}

			fmt.Fprintf(w, "troughs:\t%d\n", len(result.Troughs))
			fmt.Fprintf(w, "reduced chi-sq:\t%.6g\n", result.ReducedChiSq)

			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "4-column CSV dataset (required)")
	cmd.Flags().IntVar(&order, "order", 2, "polynomial coefficient count (1, 2 or 3)")
	cmd.Flags().Float64Var(&maxDepth, "max-depth", 0, "maximum y-value a trough may sit at")
	cmd.Flags().Float64Var(&cutoff, "smooth", 0, "optional low-pass cutoff as a fraction of Nyquist")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
