// Package hogbom deconvolves the rotation measure spread function from
// dirty Faraday dispersion functions using Hogbom CLEAN: repeatedly
// locate the residual peak, subtract a scaled, shifted copy of the RMSF,
// and record the subtraction as a clean component. The sparse component
// model is restored with a Gaussian beam sized by the pattern's RMSF
// width and added back to the residual.
package hogbom

import (
	"errors"
	"fmt"
	"math"

	"rmsynth3d/internal/models"
)

// Errors returned when validating CLEAN parameters or inputs.
var (
	ErrBadGain         = errors.New("hogbom: gain must be in (0, 1]")
	ErrNegativeCutoff  = errors.New("hogbom: cutoff must be non-negative")
	ErrNegativeMaxIter = errors.New("hogbom: maxIter must be non-negative")
	ErrBadSpacing      = errors.New("hogbom: depth spacing must be positive")
	ErrShortRMSF       = errors.New("hogbom: RMSF support too short to shift across the FDF")
)

// State is the terminal (or in-flight) condition of one pixel's CLEAN.
type State int

const (
	// Ready means the pixel has not been processed yet.
	Ready State = iota

	// Iterating means the subtraction loop is in progress.
	Iterating

	// Converged means the residual peak fell below the cutoff.
	Converged

	// MaxIterReached means the iteration budget ran out first.
	MaxIterReached

	// Degenerate means the pixel had no usable FDF or RMSF.
	Degenerate
)

// String returns the state name for logs and summaries.
func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterReached:
		return "maxIterReached"
	case Degenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Params are the user-supplied CLEAN controls.
type Params struct {
	// Gain is the loop gain applied to each subtracted peak, in (0, 1].
	Gain float64

	// Cutoff is the residual amplitude below which a pixel converges.
	Cutoff float64

	// MaxIter bounds the number of subtractions per pixel.
	MaxIter int
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if !(p.Gain > 0 && p.Gain <= 1) {
		return fmt.Errorf("%w: got %g", ErrBadGain, p.Gain)
	}
	if p.Cutoff < 0 || math.IsNaN(p.Cutoff) {
		return fmt.Errorf("%w: got %g", ErrNegativeCutoff, p.Cutoff)
	}
	if p.MaxIter < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeMaxIter, p.MaxIter)
	}
	return nil
}

// Component records one CLEAN subtraction: the trial-depth index it was
// taken at and the complex value removed (gain x peak).
type Component struct {
	Index int
	Value complex128
}

// PixelResult is the outcome of CLEAN on a single pixel.
type PixelResult struct {
	// Components lists every subtraction in order.
	Components []Component

	// Residual is what remains of the dirty FDF after the subtractions.
	Residual []complex128

	// Clean is the restored FDF: components convolved with the restoring
	// beam, plus the residual.
	Clean []complex128

	// Iterations is the number of subtractions performed.
	Iterations int

	// State is the terminal state.
	State State
}

// Engine runs Hogbom CLEAN over pixels. The engine holds only read-only
// configuration and is safe for concurrent use.
type Engine struct {
	params Params

	// dPhi is the trial-depth sample spacing, needed to express the
	// restoring beam width in samples.
	dPhi float64
}

// NewEngine validates the parameters and returns a CLEAN engine.
func NewEngine(params Params, dPhi float64) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(dPhi > 0) {
		return nil, ErrBadSpacing
	}
	return &Engine{params: params, dPhi: dPhi}, nil
}

// CleanPixel deconvolves one pixel. rmsf must cover the doubled depth
// axis with its zero-offset sample at zeroIndex, so that it can be
// aligned with any residual index. fwhm sizes the restoring beam.
func (e *Engine) CleanPixel(dirty, rmsf []complex128, zeroIndex int, fwhm float64) PixelResult {
	n := len(dirty)
	res := PixelResult{State: Ready}

	if !usable(dirty) || !usable(rmsf) || math.IsNaN(fwhm) ||
		zeroIndex < n-1 || len(rmsf)-zeroIndex < n {
		res.State = Degenerate
		res.Residual = append([]complex128(nil), dirty...)
		res.Clean = make([]complex128, n)
		blank := models.BlankComplex()
		for k := range res.Clean {
			res.Clean[k] = blank
		}
		return res
	}

	res.Residual = append([]complex128(nil), dirty...)
	res.State = Iterating

	for res.Iterations < e.params.MaxIter {
		// Peak of |residual|; ties break toward the lowest depth index.
		peak := 0
		peakAmp := ampOf(res.Residual[0])
		for k := 1; k < n; k++ {
			if a := ampOf(res.Residual[k]); a > peakAmp {
				peak = k
				peakAmp = a
			}
		}
		if peakAmp < e.params.Cutoff {
			res.State = Converged
			break
		}

		cc := complex(e.params.Gain, 0) * res.Residual[peak]
		for k := 0; k < n; k++ {
			res.Residual[k] -= cc * rmsf[(k-peak)+zeroIndex]
		}
		res.Components = append(res.Components, Component{Index: peak, Value: cc})
		res.Iterations++
	}
	if res.State == Iterating {
		res.State = MaxIterReached
	}

	res.Clean = e.restore(res.Components, res.Residual, fwhm)
	return res
}

// restore convolves the component spectrum with a unit-peak Gaussian of
// the given FWHM and adds the residual, turning the sparse delta model
// back into a spectrum at the RMSF's resolution without its sidelobes.
func (e *Engine) restore(comps []Component, residual []complex128, fwhm float64) []complex128 {
	n := len(residual)
	clean := append([]complex128(nil), residual...)
	if len(comps) == 0 {
		return clean
	}

	// Collapse repeated subtractions at the same depth first. The dense
	// slice keeps the accumulation in ascending depth order, so the
	// restored spectrum is bit-identical between runs.
	spectrum := make([]complex128, n)
	for _, c := range comps {
		spectrum[c.Index] += c.Value
	}

	sigma := fwhm / sigmaToFWHM / e.dPhi // in samples
	radius := int(math.Ceil(4 * sigma))
	if radius < 1 {
		radius = 1
	}
	for idx, val := range spectrum {
		if val == 0 {
			continue
		}
		lo, hi := idx-radius, idx+radius
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		for k := lo; k <= hi; k++ {
			d := float64(k - idx)
			clean[k] += val * complex(math.Exp(-d*d/(2*sigma*sigma)), 0)
		}
	}
	return clean
}

const sigmaToFWHM = 2.354820045030949 // 2*sqrt(2*ln 2)

func ampOf(v complex128) float64 { return math.Hypot(real(v), imag(v)) }

// usable reports whether a spectrum is present and free of non-finite
// samples. Blank sentinel pixels fail this check and stay degenerate.
func usable(spec []complex128) bool {
	if len(spec) == 0 {
		return false
	}
	for _, v := range spec {
		re, im := real(v), imag(v)
		if math.IsNaN(re) || math.IsNaN(im) || math.IsInf(re, 0) || math.IsInf(im, 0) {
			return false
		}
	}
	return true
}
