// Package config describes a complete fit run in YAML: baseline
// settings, optional smoothing, region of interest, ordered Gaussian
// guess entries and optional per-component bounds. Scalar guess, bound
// and region fields are strings so a blank value carries the same
// meaning as an empty form entry: absent, not zero.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-peakfit/fit"
	"github.com/cwbudde/algo-peakfit/gauss"
)

// ErrInvalidValue is returned when a bound entry cannot be parsed as a
// number.
var ErrInvalidValue = errors.New("config: invalid value")

// Baseline holds the trough-detection and polynomial settings.
type Baseline struct {
	Order    int     `yaml:"order"`
	MaxDepth float64 `yaml:"maxDepth"`
}

// Smoothing enables the optional FFT low-pass stage.
type Smoothing struct {
	Cutoff float64 `yaml:"cutoff"`
}

// Region holds the optional analysis window; blank means unbounded.
type Region struct {
	Lower string `yaml:"lower"`
	Upper string `yaml:"upper"`
}

// Guess is one Gaussian component entry; any blank field excludes the
// component from the model.
type Guess struct {
	Centre string `yaml:"centre"`
	Height string `yaml:"height"`
	FWHM   string `yaml:"fwhm"`
}

// BoundPair is one lower/upper constraint; blank fields default to
// the infinities.
type BoundPair struct {
	Lower string `yaml:"lower"`
	Upper string `yaml:"upper"`
}

// ComponentBounds constrains one component's three parameters. Bounds
// may be declared for components that have no guess entry yet; only
// the leading pairs matching the guessed components are consumed by a
// fit. The width pair is declared in the FWHM domain and applied to
// the width parameter as entered.
type ComponentBounds struct {
	Height BoundPair `yaml:"height"`
	Centre BoundPair `yaml:"centre"`
	FWHM   BoundPair `yaml:"fwhm"`
}

// Config is a full fit description.
type Config struct {
	Baseline  Baseline          `yaml:"baseline"`
	Smoothing *Smoothing        `yaml:"smoothing"`
	Region    Region            `yaml:"roi"`
	Gaussians []Guess           `yaml:"gaussians"`
	Bounds    []ComponentBounds `yaml:"bounds"`
}

// Load reads and decodes a YAML fit configuration.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// GuessEntries converts the component list into model guess entries,
// preserving declaration order.
func (c *Config) GuessEntries() []gauss.Entry {
	out := make([]gauss.Entry, len(c.Gaussians))
	for i, g := range c.Gaussians {
		out[i] = gauss.Entry{Centre: g.Centre, Height: g.Height, FWHM: g.FWHM}
	}

	return out
}

// FitBounds flattens the declared component bounds into the
// per-parameter vectors the fitter consumes, in (height, centre,
// width) order per component. With no bounds section both vectors are
// nil, meaning unbounded everywhere.
func (c *Config) FitBounds() (fit.Bounds, error) {
	if len(c.Bounds) == 0 {
		return fit.Bounds{}, nil
	}

	lower := make([]float64, 0, 3*len(c.Bounds))
	upper := make([]float64, 0, 3*len(c.Bounds))

	for i, cb := range c.Bounds {
		for _, pair := range []BoundPair{cb.Height, cb.Centre, cb.FWHM} {
			lo, err := parseBound(i, pair.Lower, math.Inf(-1))
			if err != nil {
				return fit.Bounds{}, err
			}

			hi, err := parseBound(i, pair.Upper, math.Inf(1))
			if err != nil {
				return fit.Bounds{}, err
			}

			lower = append(lower, lo)
			upper = append(upper, hi)
		}
	}

	return fit.Bounds{Lower: lower, Upper: upper}, nil
}

func parseBound(idx int, raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: component %d bound %q is not a number", ErrInvalidValue, idx+1, raw)
	}

	return v, nil
}
