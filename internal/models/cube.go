package models

import (
	"math"
)

// Cube is a real-valued 3D data cube stored as a flat array in FITS order:
// the spatial X axis varies fastest, then Y, then the spectral axis.
type Cube struct {
	// Data holds the samples as Data[c*NY*NX + y*NX + x]
	Data []float64

	// NChan is the length of the spectral axis (frequency channels or
	// trial Faraday depths, depending on the cube)
	NChan int

	// NY and NX are the spatial dimensions
	NY, NX int
}

// NewCube allocates a zero-filled cube with the given dimensions.
func NewCube(nChan, ny, nx int) *Cube {
	return &Cube{
		Data:  make([]float64, nChan*ny*nx),
		NChan: nChan,
		NY:    ny,
		NX:    nx,
	}
}

// At returns the sample at channel c and spatial position (y, x).
func (c *Cube) At(ch, y, x int) float64 {
	return c.Data[ch*c.NY*c.NX+y*c.NX+x]
}

// Set stores a sample at channel c and spatial position (y, x).
func (c *Cube) Set(ch, y, x int, v float64) {
	c.Data[ch*c.NY*c.NX+y*c.NX+x] = v
}

// Spectrum copies the spectral axis at spatial position (y, x) into dst,
// allocating when dst is nil or too short.
func (c *Cube) Spectrum(y, x int, dst []float64) []float64 {
	if cap(dst) < c.NChan {
		dst = make([]float64, c.NChan)
	}
	dst = dst[:c.NChan]
	stride := c.NY * c.NX
	base := y*c.NX + x
	for ch := 0; ch < c.NChan; ch++ {
		dst[ch] = c.Data[ch*stride+base]
	}
	return dst
}

// ComplexCube is the complex-valued counterpart of Cube, used for Faraday
// dispersion functions and spread functions. Same FITS-order layout.
type ComplexCube struct {
	Data  []complex128
	NChan int
	NY    int
	NX    int
}

// NewComplexCube allocates a zero-filled complex cube.
func NewComplexCube(nChan, ny, nx int) *ComplexCube {
	return &ComplexCube{
		Data:  make([]complex128, nChan*ny*nx),
		NChan: nChan,
		NY:    ny,
		NX:    nx,
	}
}

// At returns the sample at channel c and spatial position (y, x).
func (c *ComplexCube) At(ch, y, x int) complex128 {
	return c.Data[ch*c.NY*c.NX+y*c.NX+x]
}

// Set stores a sample at channel c and spatial position (y, x).
func (c *ComplexCube) Set(ch, y, x int, v complex128) {
	c.Data[ch*c.NY*c.NX+y*c.NX+x] = v
}

// Spectrum copies the spectral axis at spatial position (y, x) into dst,
// allocating when dst is nil or too short.
func (c *ComplexCube) Spectrum(y, x int, dst []complex128) []complex128 {
	if cap(dst) < c.NChan {
		dst = make([]complex128, c.NChan)
	}
	dst = dst[:c.NChan]
	stride := c.NY * c.NX
	base := y*c.NX + x
	for ch := 0; ch < c.NChan; ch++ {
		dst[ch] = c.Data[ch*stride+base]
	}
	return dst
}

// SetSpectrum writes a full spectral axis at spatial position (y, x).
func (c *ComplexCube) SetSpectrum(y, x int, spec []complex128) {
	stride := c.NY * c.NX
	base := y*c.NX + x
	for ch := 0; ch < c.NChan; ch++ {
		c.Data[ch*stride+base] = spec[ch]
	}
}

// Plane is a single 2D map aligned with the spatial axes of a cube,
// e.g. a per-pixel FWHM map or iteration-count map.
type Plane struct {
	Data []float64
	NY   int
	NX   int
}

// NewPlane allocates a zero-filled plane.
func NewPlane(ny, nx int) *Plane {
	return &Plane{Data: make([]float64, ny*nx), NY: ny, NX: nx}
}

// At returns the value at (y, x).
func (p *Plane) At(y, x int) float64 { return p.Data[y*p.NX+x] }

// Set stores a value at (y, x).
func (p *Plane) Set(y, x int, v float64) { p.Data[y*p.NX+x] = v }

// Fill sets every sample of the plane to v.
func (p *Plane) Fill(v float64) {
	for i := range p.Data {
		p.Data[i] = v
	}
}

// BlankComplex is the "no data" sentinel for complex spectra.
func BlankComplex() complex128 {
	nan := math.NaN()
	return complex(nan, nan)
}
