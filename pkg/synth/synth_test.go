package synth

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/flagpattern"
	"rmsynth3d/pkg/frequency"
)

// newTestEngine builds an engine over the 4-channel GHz coverage with a
// trial-depth axis of -5..5 rad/m^2 in steps of 1.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	model, err := frequency.New([]float64{1.0e9, 1.1e9, 1.2e9, 1.3e9}, frequency.Uniform, nil)
	if err != nil {
		t.Fatalf("frequency.New failed: %v", err)
	}
	axis, err := frequency.NewDepthAxis(5, 1)
	if err != nil {
		t.Fatalf("NewDepthAxis failed: %v", err)
	}
	engine, err := NewEngine(model, axis)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func fullMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func TestZeroDepthEqualsMean(t *testing.T) {
	engine := newTestEngine(t)

	// Arbitrary complex samples; at phi = 0 the rotation vanishes and
	// the uniform-weight FDF reduces to the plain mean.
	p := []complex128{1 + 2i, -0.5 + 0.25i, 3 - 1i, 0.75 + 0.1i}
	w := engine.PatternWeights(fullMask(4))
	lam0Sq, sumW := engine.RefLambdaSq(w)

	fdf := engine.SynthesizePixel(p, w, lam0Sq, sumW, nil)

	var mean complex128
	for _, v := range p {
		mean += v
	}
	mean /= 4

	zero := engine.Axis().NPhi() / 2
	if cmplx.Abs(fdf[zero]-mean) > 1e-12 {
		t.Errorf("FDF(0) = %v, want mean %v", fdf[zero], mean)
	}
}

func TestPointSourceAtZeroDepth(t *testing.T) {
	engine := newTestEngine(t)

	// Q = U = 1 at every channel: a flat source at phi = 0.
	p := []complex128{1 + 1i, 1 + 1i, 1 + 1i, 1 + 1i}
	w := engine.PatternWeights(fullMask(4))
	lam0Sq, sumW := engine.RefLambdaSq(w)

	fdf := engine.SynthesizePixel(p, w, lam0Sq, sumW, nil)

	zero := engine.Axis().NPhi() / 2
	peakAmp := cmplx.Abs(fdf[zero])
	if math.Abs(peakAmp-math.Sqrt2) > 1e-12 {
		t.Errorf("|FDF(0)| = %g, want sqrt(2)", peakAmp)
	}
	for k := range fdf {
		if k == zero {
			continue
		}
		if cmplx.Abs(fdf[k]) >= peakAmp {
			t.Errorf("|FDF(%g)| = %g is not below the phi=0 peak %g",
				engine.Axis().Phi[k], cmplx.Abs(fdf[k]), peakAmp)
		}
	}
}

func TestDegeneratePixelIsBlanked(t *testing.T) {
	engine := newTestEngine(t)

	w := engine.PatternWeights(make([]bool, 4)) // nothing valid
	lam0Sq, sumW := engine.RefLambdaSq(w)
	if sumW != 0 {
		t.Fatalf("sumW = %g, want 0", sumW)
	}

	fdf := engine.SynthesizePixel(make([]complex128, 4), w, lam0Sq, sumW, nil)
	for k, v := range fdf {
		if !math.IsNaN(real(v)) || !math.IsNaN(imag(v)) {
			t.Fatalf("FDF[%d] = %v, want the NaN sentinel", k, v)
		}
	}
}

func TestSynthesizeCube(t *testing.T) {
	engine := newTestEngine(t)

	q := models.NewCube(4, 1, 2)
	u := models.NewCube(4, 1, 2)
	for c := 0; c < 4; c++ {
		q.Set(c, 0, 0, 1)
		u.Set(c, 0, 0, 1)
		q.Set(c, 0, 1, math.NaN())
		u.Set(c, 0, 1, math.NaN())
	}
	reg := flagpattern.Build(q, u)

	result, err := engine.SynthesizeCube(context.Background(), q, u, reg, 2)
	if err != nil {
		t.Fatalf("SynthesizeCube failed: %v", err)
	}

	if result.Summary.Patterns != 2 {
		t.Errorf("Summary.Patterns = %d, want 2", result.Summary.Patterns)
	}
	if result.Summary.DegeneratePixels != 1 {
		t.Errorf("Summary.DegeneratePixels = %d, want 1", result.Summary.DegeneratePixels)
	}

	// Pixel 0 must match the single-pixel path exactly.
	p := []complex128{1 + 1i, 1 + 1i, 1 + 1i, 1 + 1i}
	w := engine.PatternWeights(fullMask(4))
	lam0Sq, sumW := engine.RefLambdaSq(w)
	want := engine.SynthesizePixel(p, w, lam0Sq, sumW, nil)
	got := result.FDF.Spectrum(0, 0, nil)
	for k := range want {
		if cmplx.Abs(got[k]-want[k]) > 1e-12 {
			t.Fatalf("cube FDF differs from pixel FDF at depth %d: %v vs %v", k, got[k], want[k])
		}
	}

	// Pixel 1 is degenerate and must carry the sentinel.
	blank := result.FDF.Spectrum(0, 1, nil)
	for k, v := range blank {
		if !math.IsNaN(real(v)) {
			t.Fatalf("degenerate pixel FDF[%d] = %v, want NaN sentinel", k, v)
		}
	}
}

func TestSynthesizeCubeShapeChecks(t *testing.T) {
	engine := newTestEngine(t)
	q := models.NewCube(4, 1, 1)
	u := models.NewCube(4, 2, 1)
	reg := flagpattern.Build(q, q)

	if _, err := engine.SynthesizeCube(context.Background(), q, u, reg, 1); err == nil {
		t.Error("SynthesizeCube accepted mismatched cube shapes")
	}

	short := models.NewCube(3, 1, 1)
	regShort := flagpattern.Build(short, short)
	if _, err := engine.SynthesizeCube(context.Background(), short, short, regShort, 1); err == nil {
		t.Error("SynthesizeCube accepted a cube with the wrong channel count")
	}
}

func TestPeakMaps(t *testing.T) {
	engine := newTestEngine(t)

	q := models.NewCube(4, 1, 2)
	u := models.NewCube(4, 1, 2)
	for c := 0; c < 4; c++ {
		q.Set(c, 0, 0, 1)
		u.Set(c, 0, 0, 1)
		q.Set(c, 0, 1, math.NaN())
		u.Set(c, 0, 1, math.NaN())
	}
	reg := flagpattern.Build(q, u)
	result, err := engine.SynthesizeCube(context.Background(), q, u, reg, 1)
	if err != nil {
		t.Fatalf("SynthesizeCube failed: %v", err)
	}

	peakPI, peakPhi, moment1 := PeakMaps(result.FDF, engine.Axis())

	if got := peakPhi.At(0, 0); got != 0 {
		t.Errorf("peak depth = %g, want 0", got)
	}
	if got := peakPI.At(0, 0); math.Abs(got-math.Sqrt2) > 1e-12 {
		t.Errorf("peak intensity = %g, want sqrt(2)", got)
	}
	// A source at phi = 0 over a symmetric axis has a symmetric |FDF|,
	// so the first moment vanishes.
	if got := moment1.At(0, 0); math.Abs(got) > 1e-9 {
		t.Errorf("first moment = %g, want ~0", got)
	}

	for _, plane := range []float64{peakPI.At(0, 1), peakPhi.At(0, 1), moment1.At(0, 1)} {
		if !math.IsNaN(plane) {
			t.Errorf("blank pixel map value = %g, want NaN", plane)
		}
	}
}
