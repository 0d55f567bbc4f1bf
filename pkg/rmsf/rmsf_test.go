package rmsf

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/flagpattern"
	"rmsynth3d/pkg/frequency"
)

func newTestEngine(t *testing.T, fit bool) (*Engine, frequency.DepthAxis) {
	t.Helper()
	model, err := frequency.New([]float64{1.0e9, 1.1e9, 1.2e9, 1.3e9}, frequency.Uniform, nil)
	if err != nil {
		t.Fatalf("frequency.New failed: %v", err)
	}
	axis, err := frequency.NewDepthAxis(200, 5)
	if err != nil {
		t.Fatalf("NewDepthAxis failed: %v", err)
	}
	engine, err := NewEngine(model, axis, fit)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine, axis
}

func fullMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func TestUnitPeakAtZeroOffset(t *testing.T) {
	engine, axis := newTestEngine(t, false)

	pat := engine.BuildPattern(fullMask(4))

	if len(pat.Samples) != 2*axis.NPhi()+1 {
		t.Fatalf("RMSF has %d samples, want %d", len(pat.Samples), 2*axis.NPhi()+1)
	}
	zi := axis.ZeroOffsetIndex()
	if cmplx.Abs(pat.Samples[zi]-1) > 1e-12 {
		t.Errorf("RMSF(0) = %v, want exactly 1+0i", pat.Samples[zi])
	}
	for j, v := range pat.Samples {
		if j != zi && cmplx.Abs(v) > 1+1e-12 {
			t.Errorf("|RMSF| exceeds the unit peak at offset %d: %g", j, cmplx.Abs(v))
		}
	}
	if pat.Degenerate {
		t.Error("fully valid pattern reported degenerate")
	}
	if pat.Fitted {
		t.Error("FWHM reported as fitted with fitting disabled")
	}
}

func TestFlaggingWidensFWHM(t *testing.T) {
	engine, _ := newTestEngine(t, false)

	full := engine.BuildPattern(fullMask(4))

	// Flagging the highest-frequency channel shrinks the
	// wavelength-squared coverage and must widen the main lobe.
	mask := fullMask(4)
	mask[3] = false
	flagged := engine.BuildPattern(mask)

	if !(flagged.FWHM > full.FWHM) {
		t.Errorf("flagged FWHM %g not wider than full-coverage FWHM %g",
			flagged.FWHM, full.FWHM)
	}
}

func TestDegeneratePattern(t *testing.T) {
	engine, _ := newTestEngine(t, false)

	mask := make([]bool, 4)
	mask[0] = true // a single valid channel is still degenerate
	pat := engine.BuildPattern(mask)

	if !pat.Degenerate {
		t.Fatal("single-channel pattern not reported degenerate")
	}
	if !math.IsNaN(pat.FWHM) {
		t.Errorf("degenerate FWHM = %g, want NaN", pat.FWHM)
	}
	for j, v := range pat.Samples {
		if !math.IsNaN(real(v)) || !math.IsNaN(imag(v)) {
			t.Fatalf("Samples[%d] = %v, want the NaN sentinel", j, v)
		}
	}
}

func TestMainLobeFitAgreesWithAnalytic(t *testing.T) {
	fitEngine, _ := newTestEngine(t, true)
	refEngine, _ := newTestEngine(t, false)

	fitted := fitEngine.BuildPattern(fullMask(4))
	analytic := refEngine.BuildPattern(fullMask(4))

	if !fitted.Fitted {
		t.Fatal("main-lobe fit did not converge on a well-conditioned pattern")
	}
	ratio := fitted.FWHM / analytic.FWHM
	if ratio < 0.5 || ratio > 1.5 {
		t.Errorf("fitted FWHM %g is inconsistent with the analytic estimate %g",
			fitted.FWHM, analytic.FWHM)
	}
}

func TestBuildAllAndPixelSource(t *testing.T) {
	engine, _ := newTestEngine(t, false)

	q := models.NewCube(4, 1, 3)
	u := models.NewCube(4, 1, 3)
	for c := 0; c < 4; c++ {
		for x := 0; x < 3; x++ {
			q.Set(c, 0, x, 1)
			u.Set(c, 0, x, 1)
		}
	}
	// Pixel 1 loses a channel; pixel 2 loses all of them.
	q.Set(3, 0, 1, math.NaN())
	for c := 0; c < 4; c++ {
		u.Set(c, 0, 2, math.NaN())
	}
	reg := flagpattern.Build(q, u)

	set, err := engine.BuildAll(context.Background(), reg, 2)
	if err != nil {
		t.Fatalf("BuildAll failed: %v", err)
	}
	if len(set.Patterns) != 3 {
		t.Fatalf("built %d patterns, want 3", len(set.Patterns))
	}

	src := set.PixelSource(reg)

	s0, fwhm0, ok := src.RMSF(0, 0)
	if !ok {
		t.Fatal("pixel 0 has no RMSF")
	}
	s1, fwhm1, ok := src.RMSF(0, 1)
	if !ok {
		t.Fatal("pixel 1 has no RMSF")
	}
	if _, _, ok := src.RMSF(0, 2); ok {
		t.Error("degenerate pixel 2 returned a usable RMSF")
	}

	if fwhm1 <= fwhm0 {
		t.Errorf("flagged pixel FWHM %g not wider than clean pixel FWHM %g", fwhm1, fwhm0)
	}
	if &s0[0] == &s1[0] {
		t.Error("pixels with different patterns share RMSF storage")
	}

	// Two pixels of the same pattern share the exact same array.
	again, _, _ := src.RMSF(0, 0)
	if &again[0] != &s0[0] {
		t.Error("repeated lookups of one pattern did not share storage")
	}
}
