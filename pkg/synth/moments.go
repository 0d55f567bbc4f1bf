package synth

import (
	"math"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/frequency"
)

// PeakMaps derives the ancillary per-pixel maps from a dirty FDF cube:
// the maximum polarized intensity, the trial depth of that maximum, and
// the first moment of |FDF| over depth. Pixels whose spectra are blank
// come out as NaN in all three maps.
func PeakMaps(fdf *models.ComplexCube, axis frequency.DepthAxis) (peakPI, peakPhi, moment1 *models.Plane) {
	peakPI = models.NewPlane(fdf.NY, fdf.NX)
	peakPhi = models.NewPlane(fdf.NY, fdf.NX)
	moment1 = models.NewPlane(fdf.NY, fdf.NX)

	spec := make([]complex128, fdf.NChan)
	for y := 0; y < fdf.NY; y++ {
		for x := 0; x < fdf.NX; x++ {
			spec = fdf.Spectrum(y, x, spec)

			best := -1
			bestAmp := 0.0
			var sumAmp, sumAmpPhi float64
			for k, v := range spec {
				amp := cmplxAbs(v)
				if math.IsNaN(amp) {
					continue
				}
				sumAmp += amp
				sumAmpPhi += amp * axis.Phi[k]
				if best < 0 || amp > bestAmp {
					best = k
					bestAmp = amp
				}
			}

			if best < 0 || sumAmp == 0 {
				nan := math.NaN()
				peakPI.Set(y, x, nan)
				peakPhi.Set(y, x, nan)
				moment1.Set(y, x, nan)
				continue
			}
			peakPI.Set(y, x, bestAmp)
			peakPhi.Set(y, x, axis.Phi[best])
			moment1.Set(y, x, sumAmpPhi/sumAmp)
		}
	}
	return peakPI, peakPhi, moment1
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}
