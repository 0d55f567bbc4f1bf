package models

import (
	"math"
	"testing"
)

func TestCubeIndexing(t *testing.T) {
	c := NewCube(3, 2, 4)

	c.Set(1, 0, 2, 42)
	if got := c.At(1, 0, 2); got != 42 {
		t.Errorf("At(1,0,2) = %g, want 42", got)
	}
	// X varies fastest in the flat layout.
	if c.Data[1*2*4+0*4+2] != 42 {
		t.Error("Set did not land at the FITS-order flat index")
	}

	for ch := 0; ch < 3; ch++ {
		c.Set(ch, 1, 3, float64(ch)+1)
	}
	spec := c.Spectrum(1, 3, nil)
	for ch, v := range spec {
		if v != float64(ch)+1 {
			t.Errorf("Spectrum[%d] = %g, want %d", ch, v, ch+1)
		}
	}

	// A sufficiently large dst is reused, not reallocated.
	buf := make([]float64, 8)
	spec = c.Spectrum(1, 3, buf)
	if &spec[0] != &buf[0] {
		t.Error("Spectrum reallocated despite a large enough buffer")
	}
	if len(spec) != 3 {
		t.Errorf("Spectrum length = %d, want 3", len(spec))
	}
}

func TestComplexCubeSpectrumRoundTrip(t *testing.T) {
	c := NewComplexCube(4, 2, 2)

	in := []complex128{1 + 1i, 2 - 1i, -3i, 0.5}
	c.SetSpectrum(1, 0, in)

	out := c.Spectrum(1, 0, nil)
	for ch := range in {
		if out[ch] != in[ch] {
			t.Errorf("Spectrum[%d] = %v, want %v", ch, out[ch], in[ch])
		}
		if c.At(ch, 1, 0) != in[ch] {
			t.Errorf("At(%d,1,0) = %v, want %v", ch, c.At(ch, 1, 0), in[ch])
		}
	}

	// Neighbouring pixels are untouched.
	for ch := 0; ch < 4; ch++ {
		if c.At(ch, 1, 1) != 0 {
			t.Errorf("neighbouring pixel modified at channel %d", ch)
		}
	}
}

func TestPlane(t *testing.T) {
	p := NewPlane(2, 3)
	p.Set(1, 2, 7)
	if p.At(1, 2) != 7 {
		t.Errorf("At(1,2) = %g, want 7", p.At(1, 2))
	}

	p.Fill(math.NaN())
	for i, v := range p.Data {
		if !math.IsNaN(v) {
			t.Errorf("Fill left Data[%d] = %g", i, v)
		}
	}
}

func TestBlankComplex(t *testing.T) {
	v := BlankComplex()
	if !math.IsNaN(real(v)) || !math.IsNaN(imag(v)) {
		t.Errorf("BlankComplex = %v, want NaN in both parts", v)
	}
}
