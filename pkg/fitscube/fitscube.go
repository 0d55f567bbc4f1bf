// Package fitscube reads and writes the FITS containers used by the
// RM pipeline: Stokes cubes on input, FDF/RMSF cubes and per-pixel maps
// on output. The numeric core never sees this package; it exchanges
// plain arrays only.
package fitscube

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/astrogo/fitsio"

	"rmsynth3d/internal/models"
)

// Errors returned by the FITS layer.
var (
	ErrNotImage   = errors.New("fitscube: HDU does not contain image data")
	ErrNotCube    = errors.New("fitscube: expected a 3-axis image")
	ErrNotPlane   = errors.New("fitscube: expected a 2-axis image")
	ErrBitpix     = errors.New("fitscube: unsupported BITPIX, expected -32 or -64")
	ErrMissingHDU = errors.New("fitscube: file has fewer HDUs than expected")
)

// LinAxis is a linear FITS world-coordinate axis (CRVAL/CDELT/CRPIX).
type LinAxis struct {
	CRVAL float64
	CDELT float64
	CRPIX float64
}

// Values expands the axis description into n world coordinates following
// the FITS convention (pixel indices are 1-based at CRPIX).
func (a LinAxis) Values(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = a.CRVAL + (float64(i+1)-a.CRPIX)*a.CDELT
	}
	return vals
}

// LinAxisFor describes a sampled axis as CRVAL/CDELT/CRPIX with the
// reference at the first sample.
func LinAxisFor(values []float64) LinAxis {
	if len(values) == 0 {
		return LinAxis{CRPIX: 1}
	}
	delta := 0.0
	if len(values) > 1 {
		delta = values[1] - values[0]
	}
	return LinAxis{CRVAL: values[0], CDELT: delta, CRPIX: 1}
}

// Metadata carries the header content copied through from an input file
// plus the spectral-axis description of the data it accompanies.
type Metadata struct {
	// Cards are the non-structural header cards to replicate on output.
	Cards []fitsio.Card

	// Axis3 describes the spectral (third) axis.
	Axis3 LinAxis
}

// copiedCardNames are the coordinate and provenance cards carried from
// input headers to every output file.
var copiedCardNames = []string{
	"OBJECT", "TELESCOP", "INSTRUME", "OBSERVER", "EQUINOX", "RADESYS",
	"BUNIT", "BMAJ", "BMIN", "BPA",
	"CTYPE1", "CRVAL1", "CDELT1", "CRPIX1", "CUNIT1",
	"CTYPE2", "CRVAL2", "CDELT2", "CRPIX2", "CUNIT2",
}

func copyCards(hdr *fitsio.Header) []fitsio.Card {
	var cards []fitsio.Card
	for _, name := range copiedCardNames {
		if c := hdr.Get(name); c != nil {
			cards = append(cards, *c)
		}
	}
	return cards
}

func cardFloat(hdr *fitsio.Header, name string) (float64, bool) {
	c := hdr.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// axis3FromHeader reads the spectral-axis triple; absent cards default to
// a unit pixel axis.
func axis3FromHeader(hdr *fitsio.Header) LinAxis {
	ax := LinAxis{CRVAL: 1, CDELT: 1, CRPIX: 1}
	if v, ok := cardFloat(hdr, "CRVAL3"); ok {
		ax.CRVAL = v
	}
	if v, ok := cardFloat(hdr, "CDELT3"); ok {
		ax.CDELT = v
	}
	if v, ok := cardFloat(hdr, "CRPIX3"); ok {
		ax.CRPIX = v
	}
	return ax
}

func imageData(hdu fitsio.HDU) ([]float64, []int, error) {
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, nil, ErrNotImage
	}
	hdr := img.Header()
	axes := hdr.Axes()

	n := 1
	for _, a := range axes {
		n *= a
	}

	var data []float64
	switch hdr.Bitpix() {
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, nil, fmt.Errorf("fitscube: reading image data: %w", err)
		}
		data = make([]float64, n)
		for i, v := range raw {
			data[i] = float64(v)
		}
	case -64:
		data = make([]float64, n)
		if err := img.Read(&data); err != nil {
			return nil, nil, fmt.Errorf("fitscube: reading image data: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("%w: got %d", ErrBitpix, hdr.Bitpix())
	}
	return data, axes, nil
}

func cubeFromHDU(hdu fitsio.HDU) (*models.Cube, error) {
	data, axes, err := imageData(hdu)
	if err != nil {
		return nil, err
	}
	if len(axes) != 3 {
		return nil, fmt.Errorf("%w: got %d axes", ErrNotCube, len(axes))
	}
	return &models.Cube{Data: data, NChan: axes[2], NY: axes[1], NX: axes[0]}, nil
}

func planeFromHDU(hdu fitsio.HDU) (*models.Plane, error) {
	data, axes, err := imageData(hdu)
	if err != nil {
		return nil, err
	}
	if len(axes) != 2 {
		return nil, fmt.Errorf("%w: got %d axes", ErrNotPlane, len(axes))
	}
	return &models.Plane{Data: data, NY: axes[1], NX: axes[0]}, nil
}

// ReadCube reads the primary HDU of a FITS file as a real 3D cube.
func ReadCube(path string) (*models.Cube, Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Metadata{}, err
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fitscube: opening %s: %w", path, err)
	}
	defer fits.Close()

	hdu := fits.HDU(0)
	cube, err := cubeFromHDU(hdu)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fitscube: %s: %w", path, err)
	}
	meta := Metadata{
		Cards: copyCards(hdu.Header()),
		Axis3: axis3FromHeader(hdu.Header()),
	}
	return cube, meta, nil
}

// ReadComplexCube reads a complex cube stored as two aligned image HDUs
// (real plane first, imaginary plane second), the layout the synthesis
// stage writes FDF and RMSF cubes in.
func ReadComplexCube(path string) (*models.ComplexCube, Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Metadata{}, err
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fitscube: opening %s: %w", path, err)
	}
	defer fits.Close()

	if len(fits.HDUs()) < 2 {
		return nil, Metadata{}, fmt.Errorf("%w: %s needs real and imaginary HDUs", ErrMissingHDU, path)
	}
	re, err := cubeFromHDU(fits.HDU(0))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fitscube: %s: %w", path, err)
	}
	im, err := cubeFromHDU(fits.HDU(1))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fitscube: %s: %w", path, err)
	}
	if re.NChan != im.NChan || re.NY != im.NY || re.NX != im.NX {
		return nil, Metadata{}, fmt.Errorf("fitscube: %s: real and imaginary HDUs differ in shape", path)
	}

	cube := models.NewComplexCube(re.NChan, re.NY, re.NX)
	for i := range cube.Data {
		cube.Data[i] = complex(re.Data[i], im.Data[i])
	}
	meta := Metadata{
		Cards: copyCards(fits.HDU(0).Header()),
		Axis3: axis3FromHeader(fits.HDU(0).Header()),
	}
	return cube, meta, nil
}

// ReadRMSF reads a spread-function file written by WriteRMSF: real and
// imaginary cubes in the first two HDUs and the per-pixel FWHM map in
// the fourth.
func ReadRMSF(path string) (*models.ComplexCube, *models.Plane, Metadata, error) {
	cube, meta, err := ReadComplexCube(path)
	if err != nil {
		return nil, nil, Metadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, Metadata{}, err
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, nil, Metadata{}, fmt.Errorf("fitscube: opening %s: %w", path, err)
	}
	defer fits.Close()

	if len(fits.HDUs()) < 4 {
		return nil, nil, Metadata{}, fmt.Errorf("%w: %s has no FWHM map", ErrMissingHDU, path)
	}
	fwhm, err := planeFromHDU(fits.HDU(3))
	if err != nil {
		return nil, nil, Metadata{}, fmt.Errorf("fitscube: %s: %w", path, err)
	}
	return cube, fwhm, meta, nil
}

// hduSpec describes one output image HDU.
type hduSpec struct {
	axes []int
	data []float64
}

func writeFile(path string, specs []hduSpec, meta Metadata, extra []fitsio.Card) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		return fmt.Errorf("fitscube: creating %s: %w", path, err)
	}
	defer fits.Close()

	for _, spec := range specs {
		img := fitsio.NewImage(-32, spec.axes)

		cards := make([]fitsio.Card, 0, len(meta.Cards)+len(extra)+3)
		cards = append(cards, meta.Cards...)
		if len(spec.axes) == 3 {
			cards = append(cards,
				fitsio.Card{Name: "CTYPE3", Value: "FARADAY DEPTH", Comment: "trial Faraday depth axis"},
				fitsio.Card{Name: "CRVAL3", Value: meta.Axis3.CRVAL, Comment: "[rad/m^2]"},
				fitsio.Card{Name: "CDELT3", Value: meta.Axis3.CDELT, Comment: "[rad/m^2]"},
				fitsio.Card{Name: "CRPIX3", Value: meta.Axis3.CRPIX, Comment: ""},
			)
		}
		cards = append(cards, extra...)
		if err := img.Header().Append(cards...); err != nil {
			img.Close()
			return fmt.Errorf("fitscube: writing header of %s: %w", path, err)
		}

		raw := make([]float32, len(spec.data))
		for i, v := range spec.data {
			raw[i] = float32(v)
		}
		if err := img.Write(&raw); err != nil {
			img.Close()
			return fmt.Errorf("fitscube: writing image data of %s: %w", path, err)
		}
		if err := fits.Write(img); err != nil {
			img.Close()
			return fmt.Errorf("fitscube: writing HDU of %s: %w", path, err)
		}
		img.Close()
	}
	return nil
}

func cubeAxes(nChan, ny, nx int) []int { return []int{nx, ny, nChan} }

func realParts(c *models.ComplexCube) []float64 {
	out := make([]float64, len(c.Data))
	for i, v := range c.Data {
		out[i] = real(v)
	}
	return out
}

func imagParts(c *models.ComplexCube) []float64 {
	out := make([]float64, len(c.Data))
	for i, v := range c.Data {
		out[i] = imag(v)
	}
	return out
}

func ampParts(c *models.ComplexCube) []float64 {
	out := make([]float64, len(c.Data))
	for i, v := range c.Data {
		out[i] = math.Hypot(real(v), imag(v))
	}
	return out
}

// WriteComplexCube writes a complex cube as real and imaginary HDUs,
// optionally followed by an amplitude HDU and extra real cubes.
func WriteComplexCube(path string, cube *models.ComplexCube, withAmp bool, meta Metadata, extraCubes ...*models.Cube) error {
	axes := cubeAxes(cube.NChan, cube.NY, cube.NX)
	specs := []hduSpec{
		{axes: axes, data: realParts(cube)},
		{axes: axes, data: imagParts(cube)},
	}
	if withAmp {
		specs = append(specs, hduSpec{axes: axes, data: ampParts(cube)})
	}
	for _, ec := range extraCubes {
		specs = append(specs, hduSpec{axes: cubeAxes(ec.NChan, ec.NY, ec.NX), data: ec.Data})
	}
	return writeFile(path, specs, meta, nil)
}

// WriteRMSF writes a spread-function cube: real, imaginary and amplitude
// HDUs over the doubled depth axis, then the per-pixel FWHM map.
func WriteRMSF(path string, cube *models.ComplexCube, fwhm *models.Plane, meta Metadata) error {
	axes := cubeAxes(cube.NChan, cube.NY, cube.NX)
	specs := []hduSpec{
		{axes: axes, data: realParts(cube)},
		{axes: axes, data: imagParts(cube)},
		{axes: axes, data: ampParts(cube)},
		{axes: []int{fwhm.NX, fwhm.NY}, data: fwhm.Data},
	}
	return writeFile(path, specs, meta, nil)
}

// WritePlane writes a single per-pixel map, tagging its unit.
func WritePlane(path string, plane *models.Plane, meta Metadata, bunit string) error {
	specs := []hduSpec{{axes: []int{plane.NX, plane.NY}, data: plane.Data}}
	var extra []fitsio.Card
	if bunit != "" {
		kept := meta.Cards[:0:0]
		for _, c := range meta.Cards {
			if c.Name != "BUNIT" {
				kept = append(kept, c)
			}
		}
		meta.Cards = kept
		extra = append(extra, fitsio.Card{Name: "BUNIT", Value: bunit, Comment: ""})
	}
	return writeFile(path, specs, meta, extra)
}
