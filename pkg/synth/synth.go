// Package synth performs RM-synthesis: for every pixel of a Stokes Q/U
// cube it sums the weighted, phase-rotated complex polarization samples
// across frequency to produce the dirty Faraday dispersion function (FDF)
// over a shared axis of trial Faraday depths.
package synth

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/flagpattern"
	"rmsynth3d/pkg/frequency"
)

// Errors returned by the synthesis engine.
var (
	ErrNilModel      = errors.New("synth: frequency model is required")
	ErrEmptyAxis     = errors.New("synth: depth axis is empty")
	ErrShapeMismatch = errors.New("synth: Q and U cubes differ in shape")
	ErrChanMismatch  = errors.New("synth: cube channel count does not match frequency model")
)

// Engine synthesizes dirty FDFs for the pixels of one cube pair. The
// frequency model and depth axis are shared, read-only state; the engine
// itself is safe for concurrent use by multiple goroutines.
type Engine struct {
	model *frequency.Model
	axis  frequency.DepthAxis
}

// NewEngine validates the shared inputs and returns a synthesis engine.
func NewEngine(model *frequency.Model, axis frequency.DepthAxis) (*Engine, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if axis.NPhi() == 0 {
		return nil, ErrEmptyAxis
	}
	return &Engine{model: model, axis: axis}, nil
}

// Axis returns the trial-depth axis the engine synthesizes over.
func (e *Engine) Axis() frequency.DepthAxis { return e.axis }

// Model returns the frequency model the engine was built with.
func (e *Engine) Model() *frequency.Model { return e.model }

// PatternWeights returns the base channel weights with entries at invalid
// channels forced to zero. The positional alignment with the frequency
// axis is preserved.
func (e *Engine) PatternWeights(mask []bool) []float64 {
	w := make([]float64, len(e.model.Weights))
	for c, ok := range mask {
		if ok {
			w[c] = e.model.Weights[c]
		}
	}
	return w
}

// RefLambdaSq returns the weight sum and the weighted mean of the
// wavelength-squared values, the reference point the phase rotation is
// taken about. A zero weight sum marks the pixel degenerate.
func (e *Engine) RefLambdaSq(w []float64) (lam0Sq, sumW float64) {
	sumW = floats.Sum(w)
	if sumW <= 0 {
		return 0, 0
	}
	return stat.Mean(e.model.LambdaSq, w), sumW
}

// SynthesizePixel computes the dirty FDF of one pixel:
//
//	FDF(phi_k) = 1/sumW * sum_c w_c * P_c * exp(-2i*phi_k*(lam2_c - lam0Sq))
//
// p holds the complex polarization samples Q+iU per channel and w the
// pattern weights (invalid channels zeroed). When sumW is zero the blank
// sentinel is returned for every depth. The result is written into dst
// when it has sufficient capacity.
func (e *Engine) SynthesizePixel(p []complex128, w []float64, lam0Sq, sumW float64, dst []complex128) []complex128 {
	nPhi := e.axis.NPhi()
	if cap(dst) < nPhi {
		dst = make([]complex128, nPhi)
	}
	dst = dst[:nPhi]

	if sumW <= 0 {
		blank := models.BlankComplex()
		for k := range dst {
			dst[k] = blank
		}
		return dst
	}

	lamSq := e.model.LambdaSq
	for k, phi := range e.axis.Phi {
		var re, im float64
		for c := range p {
			if w[c] == 0 {
				continue
			}
			s, co := math.Sincos(-2.0 * phi * (lamSq[c] - lam0Sq))
			pr, pi := real(p[c]), imag(p[c])
			re += w[c] * (pr*co - pi*s)
			im += w[c] * (pr*s + pi*co)
		}
		dst[k] = complex(re/sumW, im/sumW)
	}
	return dst
}

// Summary aggregates the per-unit degradations of one synthesis run.
type Summary struct {
	// DegeneratePixels is the number of pixels with fewer than 2 valid
	// channels, filled with the blank sentinel.
	DegeneratePixels int

	// Patterns is the number of distinct flag patterns encountered.
	Patterns int
}

// Result holds the outputs of a full-cube synthesis.
type Result struct {
	// FDF is the dirty Faraday dispersion function cube (depth, y, x).
	FDF *models.ComplexCube

	Summary Summary
}

// SynthesizeCube runs the per-pixel synthesis across a whole cube pair,
// data-parallel over image rows. Per-pattern weights and reference points
// are computed once per flag pattern. Cancellation is honoured at row
// boundaries only; individual pixels are never interrupted.
func (e *Engine) SynthesizeCube(ctx context.Context, q, u *models.Cube, reg *flagpattern.Registry, workers int) (*Result, error) {
	if q.NChan != u.NChan || q.NY != u.NY || q.NX != u.NX {
		return nil, ErrShapeMismatch
	}
	if q.NChan != e.model.NChan() {
		return nil, ErrChanMismatch
	}
	if workers < 1 {
		workers = 1
	}

	// One weight vector and reference point per pattern, shared read-only
	// by all workers.
	nPat := reg.NumPatterns()
	patW := make([][]float64, nPat)
	patLam0 := make([]float64, nPat)
	patSumW := make([]float64, nPat)
	for id := 0; id < nPat; id++ {
		patW[id] = e.PatternWeights(reg.Mask(id))
		patLam0[id], patSumW[id] = e.RefLambdaSq(patW[id])
		if reg.Degenerate(id) {
			// A single valid channel still has weight, but one sample
			// cannot constrain a rotation; blank it like an empty one.
			patSumW[id] = 0
		}
	}

	res := &Result{
		FDF: models.NewComplexCube(e.axis.NPhi(), q.NY, q.NX),
		Summary: Summary{
			DegeneratePixels: reg.DegeneratePixels(),
			Patterns:         nPat,
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y := 0; y < q.NY; y++ {
		y := y
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := make([]complex128, q.NChan)
			spec := make([]complex128, e.axis.NPhi())
			for x := 0; x < q.NX; x++ {
				for c := 0; c < q.NChan; c++ {
					p[c] = complex(q.At(c, y, x), u.At(c, y, x))
				}
				id := reg.PatternOf(y, x)
				spec = e.SynthesizePixel(p, patW[id], patLam0[id], patSumW[id], spec)
				res.FDF.SetSpectrum(y, x, spec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
