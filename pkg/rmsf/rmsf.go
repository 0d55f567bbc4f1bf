// Package rmsf builds rotation measure spread functions (RMSFs), the
// Faraday-depth impulse response of the synthesis transform. One RMSF is
// built per distinct flag pattern, on an axis of twice the extent of the
// trial-depth axis so it can be shifted across the full FDF support
// during deconvolution.
package rmsf

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/flagpattern"
	"rmsynth3d/pkg/frequency"
)

// Errors returned while building spread functions.
var (
	ErrNilModel  = errors.New("rmsf: frequency model is required")
	ErrEmptyAxis = errors.New("rmsf: depth axis is empty")
)

// Engine builds spread functions for the flag patterns of one cube.
type Engine struct {
	model *frequency.Model
	axis  frequency.DepthAxis

	// FitMainLobe requests a Gaussian fit to the main lobe of each
	// pattern's |RMSF|; the fitted width replaces the analytic estimate.
	FitMainLobe bool
}

// NewEngine validates the shared inputs and returns an RMSF engine.
func NewEngine(model *frequency.Model, axis frequency.DepthAxis, fitMainLobe bool) (*Engine, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if axis.NPhi() == 0 {
		return nil, ErrEmptyAxis
	}
	return &Engine{model: model, axis: axis, FitMainLobe: fitMainLobe}, nil
}

// Pattern is the spread function of one flag pattern.
type Pattern struct {
	// Samples is the complex RMSF over the doubled depth axis.
	Samples []complex128

	// Weights is the channel weight vector the pattern was built with,
	// kept for diagnostic reuse.
	Weights []float64

	// FWHM is the main-lobe full width at half maximum [rad/m^2],
	// fitted when Fitted is true, analytic otherwise. NaN for a
	// degenerate pattern.
	FWHM float64

	// Fitted reports whether FWHM came from a converged Gaussian fit.
	Fitted bool

	// Degenerate marks a pattern with fewer than 2 valid channels; its
	// samples are the blank sentinel and its FWHM is undefined.
	Degenerate bool
}

// Set holds the spread functions of every pattern in a registry, indexed
// by pattern id, plus the doubled axis they are sampled on.
type Set struct {
	// Phi2 is the doubled depth axis.
	Phi2 []float64

	// ZeroIndex is the index of the zero-offset sample in Phi2.
	ZeroIndex int

	Patterns []Pattern

	// FallbackCount is the number of patterns whose main-lobe fit failed
	// and fell back to the analytic width. Reported once per run.
	FallbackCount int
}

// BuildPattern computes the spread function of a single validity mask:
// the same weighted summation as the synthesis with unit amplitude in
// place of the polarization samples, over the doubled axis.
func (e *Engine) BuildPattern(mask []bool) Pattern {
	w := make([]float64, len(e.model.Weights))
	for c, ok := range mask {
		if ok {
			w[c] = e.model.Weights[c]
		}
	}
	sumW := floats.Sum(w)

	phi2 := e.axis.Doubled()
	pat := Pattern{
		Samples: make([]complex128, len(phi2)),
		Weights: w,
	}

	nValid := 0
	for _, ok := range mask {
		if ok {
			nValid++
		}
	}
	if nValid < 2 || sumW <= 0 {
		blank := models.BlankComplex()
		for j := range pat.Samples {
			pat.Samples[j] = blank
		}
		pat.FWHM = math.NaN()
		pat.Degenerate = true
		return pat
	}

	lamSq := e.model.LambdaSq
	var lam0Sq float64
	for c := range w {
		lam0Sq += w[c] * lamSq[c]
	}
	lam0Sq /= sumW

	for j, phi := range phi2 {
		var re, im float64
		for c := range w {
			if w[c] == 0 {
				continue
			}
			s, co := math.Sincos(-2.0 * phi * (lamSq[c] - lam0Sq))
			re += w[c] * co
			im += w[c] * s
		}
		pat.Samples[j] = complex(re/sumW, im/sumW)
	}

	pat.FWHM = e.analyticFWHM(mask)
	if e.FitMainLobe {
		if fwhm, ok := e.fitMainLobe(phi2, pat.Samples, pat.FWHM); ok {
			pat.FWHM = fwhm
			pat.Fitted = true
		}
	}
	return pat
}

// analyticFWHM is the closed-form main-lobe width over the pattern's
// valid channels, 2*sqrt(3) / (wavelength-squared range).
func (e *Engine) analyticFWHM(mask []bool) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for c, ok := range mask {
		if !ok {
			continue
		}
		l := e.model.LambdaSq[c]
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	if !(hi > lo) {
		return math.NaN()
	}
	return 2.0 * math.Sqrt(3.0) / (hi - lo)
}

// BuildAll builds the spread functions of every pattern in the registry.
// Patterns are disjoint, so they are built in parallel; cancellation is
// honoured at pattern boundaries.
func (e *Engine) BuildAll(ctx context.Context, reg *flagpattern.Registry, workers int) (*Set, error) {
	if workers < 1 {
		workers = 1
	}

	set := &Set{
		Phi2:      e.axis.Doubled(),
		ZeroIndex: e.axis.ZeroOffsetIndex(),
		Patterns:  make([]Pattern, reg.NumPatterns()),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for id := 0; id < reg.NumPatterns(); id++ {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			set.Patterns[id] = e.BuildPattern(reg.Mask(id))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range set.Patterns {
		if !set.Patterns[i].Degenerate && e.FitMainLobe && !set.Patterns[i].Fitted {
			set.FallbackCount++
		}
	}
	return set, nil
}

// PixelSource adapts a pattern-indexed Set to per-pixel lookup through a
// flag-pattern registry.
type PixelSource struct {
	set *Set
	reg *flagpattern.Registry
}

// PixelSource returns a per-pixel view of the set.
func (s *Set) PixelSource(reg *flagpattern.Registry) *PixelSource {
	return &PixelSource{set: s, reg: reg}
}

// RMSF returns the spread function and main-lobe width for pixel (y, x).
// ok is false for pixels belonging to a degenerate pattern.
func (ps *PixelSource) RMSF(y, x int) (samples []complex128, fwhm float64, ok bool) {
	pat := &ps.set.Patterns[ps.reg.PatternOf(y, x)]
	if pat.Degenerate {
		return nil, math.NaN(), false
	}
	return pat.Samples, pat.FWHM, true
}
