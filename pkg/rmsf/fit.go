package rmsf

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// sigmaToFWHM converts a Gaussian sigma to full width at half maximum.
const sigmaToFWHM = 2.354820045030949 // 2*sqrt(2*ln 2)

// fitMainLobe fits a Gaussian (height, center, sigma) to |RMSF| within a
// window of one analytic FWHM either side of the global amplitude peak
// and returns the fitted width. ok is false when the minimizer fails or
// the solution is unusable, in which case the caller keeps the analytic
// estimate.
func (e *Engine) fitMainLobe(phi2 []float64, samples []complex128, analyticFWHM float64) (fwhm float64, ok bool) {
	if math.IsNaN(analyticFWHM) {
		return 0, false
	}

	amp := make([]float64, len(samples))
	peak := 0
	for j, v := range samples {
		amp[j] = math.Hypot(real(v), imag(v))
		if amp[j] > amp[peak] {
			peak = j
		}
	}

	halfWin := int(math.Round(analyticFWHM / e.axis.DPhi))
	if halfWin < 2 {
		halfWin = 2
	}
	lo := peak - halfWin
	if lo < 0 {
		lo = 0
	}
	hi := peak + halfWin + 1
	if hi > len(amp) {
		hi = len(amp)
	}
	if hi-lo < 4 {
		return 0, false
	}
	winPhi := phi2[lo:hi]
	winAmp := amp[lo:hi]

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			height, center, sigma := x[0], x[1], x[2]
			if sigma <= 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, p := range winPhi {
				d := p - center
				r := winAmp[i] - height*math.Exp(-d*d/(2*sigma*sigma))
				sse += r * r
			}
			return sse
		},
	}

	x0 := []float64{amp[peak], phi2[peak], analyticFWHM / sigmaToFWHM}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, false
	}

	sigma := result.X[2]
	fwhm = sigma * sigmaToFWHM
	if math.IsNaN(fwhm) || fwhm <= 0 || fwhm > 10*analyticFWHM {
		return 0, false
	}
	return fwhm, true
}
