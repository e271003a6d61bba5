package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-peakfit/config"
	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/gauss"
	"github.com/cwbudde/algo-peakfit/pipeline"
)

func newFitCmd() *cobra.Command {
	var (
		input      string
		configPath string
		output     string
		maxIter    int
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Run the full pipeline and fit the configured Gaussians",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			bounds, err := cfg.FitBounds()
			if err != nil {
				return err
			}

			ctrl := pipeline.New()

			if err := ctrl.Load(input); err != nil {
				return err
			}

			slog.Debug("dataset loaded", "path", input, "samples", ctrl.Dataset().Len())

			if cfg.Smoothing != nil {
				if err := ctrl.Smooth(cfg.Smoothing.Cutoff); err != nil {
					return err
				}

				slog.Debug("signal smoothed", "cutoff", cfg.Smoothing.Cutoff)
			}

			result, err := ctrl.EstimateBaseline(cfg.Baseline.MaxDepth, cfg.Baseline.Order)
			if err != nil {
				return err
			}

			slog.Debug("baseline previewed", "troughs", len(result.Troughs), "reducedChiSq", result.ReducedChiSq)

			if err := ctrl.SubtractBaseline(); err != nil {
				return err
			}

			if err := ctrl.SelectRegion(cfg.Region.Lower, cfg.Region.Upper); err != nil {
				return err
			}

			slog.Debug("region selected", "samples", ctrl.Region().Len())

			var opts []fit.Option
			if maxIter > 0 {
				opts = append(opts, fit.WithMaxIterations(maxIter))
			}

			records, err := ctrl.Fit(cfg.GuessEntries(), bounds, opts...)
			if err != nil {
				return err
			}

			printRecords(cmd, records)

			if output != "" {
				if err := writeRecords(output, records); err != nil {
					return err
				}

				slog.Debug("results written", "path", output, "components", len(records))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "4-column CSV dataset (required)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML fit configuration (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results CSV to this path")
	cmd.Flags().IntVar(&maxIter, "max-iterations", 0, "optimizer iteration cap (0 = default)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func printRecords(cmd *cobra.Command, records []gauss.Record) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	for i, r := range records {
		fmt.Fprintf(w, "---- Fit Number %d ----\n", i+1)
		fmt.Fprintf(w, "Height:\t%.3g ± %.3g\n", r.Height, r.HeightErr)
		fmt.Fprintf(w, "Centre:\t%.9g ± %.3g\n", r.Centre, r.CentreErr)
		fmt.Fprintf(w, "FWHM:\t%.3g ± %.3g\n", r.FWHM, r.FWHMErr)
	}

	w.Flush()
}

func writeRecords(path string, records []gauss.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if err := gauss.WriteRecords(f, records); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
