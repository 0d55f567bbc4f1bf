package frequency

import (
	"math"
)

// DepthAxis is the linear axis of trial Faraday depths shared by every
// pixel. The axis is symmetric about zero with an exact phi = 0 sample.
type DepthAxis struct {
	// Phi holds the trial depths [rad/m^2], strictly increasing.
	Phi []float64

	// DPhi is the constant sample spacing [rad/m^2].
	DPhi float64
}

// NewDepthAxis builds a symmetric trial-depth axis reaching at least
// +-phiMax with spacing dPhi. The sample count is always odd so the axis
// contains phi = 0 exactly.
func NewDepthAxis(phiMax, dPhi float64) (DepthAxis, error) {
	if !(phiMax > 0) || !(dPhi > 0) {
		return DepthAxis{}, ErrBadDepthAxis
	}

	half := int(math.Round(phiMax / dPhi))
	if half < 1 {
		half = 1
	}
	n := 2*half + 1

	phi := make([]float64, n)
	for i := range phi {
		phi[i] = float64(i-half) * dPhi
	}
	return DepthAxis{Phi: phi, DPhi: dPhi}, nil
}

// AutoDepthAxis derives the trial-depth axis from the channel coverage,
// mirroring the auto-selection of the original pipeline: the spacing
// samples the natural FWHM nSamples times, and the extent is set by the
// largest wavelength-squared channel gap, floored at MinPhiMax.
// Explicit phiMax or dPhi values override the derived ones when positive.
func (m *Model) AutoDepthAxis(phiMax, dPhi, nSamples float64) (DepthAxis, error) {
	if nSamples <= 0 {
		nSamples = 5.0
	}
	if dPhi <= 0 {
		dPhi = m.NaturalFWHM() / nSamples
	}
	if phiMax <= 0 {
		phiMax = math.Sqrt(3.0) / m.maxLambdaSqStep()
		if phiMax < MinPhiMax {
			phiMax = MinPhiMax
		}
	}
	return NewDepthAxis(phiMax, dPhi)
}

// NPhi returns the number of trial depths.
func (a DepthAxis) NPhi() int { return len(a.Phi) }

// Doubled returns the spread-function axis: same spacing, twice the
// extent, 2n+1 samples with the central sample exactly at zero offset.
func (a DepthAxis) Doubled() []float64 {
	n := len(a.Phi)
	phi2 := make([]float64, 2*n+1)
	for i := range phi2 {
		phi2[i] = float64(i-n) * a.DPhi
	}
	return phi2
}

// ZeroOffsetIndex returns the index of the phi2 = 0 sample on the
// doubled axis returned by Doubled.
func (a DepthAxis) ZeroOffsetIndex() int { return len(a.Phi) }
