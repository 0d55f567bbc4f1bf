// Package frequency derives the wavelength-squared axis and the channel
// weighting vector from the observing frequencies of a polarization cube,
// and constructs the trial Faraday-depth axis sampled by the synthesis.
package frequency

import (
	"errors"
	"fmt"
	"math"
)

// SpeedOfLight is the value used throughout the RM pipelines [m/s].
const SpeedOfLight = 2.997924538e8

// MinPhiMax is the floor applied to the auto-selected maximum trial
// Faraday depth [rad/m^2].
const MinPhiMax = 600.0

// Errors returned while building the frequency model or the depth axis.
var (
	ErrTooFewChannels    = errors.New("frequency: need at least 2 channels")
	ErrNonPositiveFreq   = errors.New("frequency: frequencies must be positive")
	ErrUnknownWeightMode = errors.New("frequency: unknown weighting mode")
	ErrInvalidWeightMode = errors.New("frequency: variance weighting requires noise values")
	ErrNonPositiveNoise  = errors.New("frequency: noise values must be positive")
	ErrLengthMismatch    = errors.New("frequency: noise vector length does not match frequency vector")
	ErrBadDepthAxis      = errors.New("frequency: depth axis requires positive extent and spacing")
)

// WeightMode selects how the base channel weights are formed.
type WeightMode int

const (
	// Uniform assigns weight 1 to every channel.
	Uniform WeightMode = iota

	// Variance assigns 1/noise^2 to every channel.
	Variance
)

// ParseWeightMode maps the command-line weighting names to a WeightMode.
func ParseWeightMode(s string) (WeightMode, error) {
	switch s {
	case "uniform":
		return Uniform, nil
	case "variance":
		return Variance, nil
	default:
		return Uniform, fmt.Errorf("%w: %q", ErrUnknownWeightMode, s)
	}
}

// Model holds the per-channel quantities shared by every pixel: the
// observing frequencies, the derived wavelength-squared values and the
// base weights before any per-pixel flagging is applied.
type Model struct {
	Freqs    []float64
	LambdaSq []float64
	Weights  []float64
}

// New builds a frequency model from a vector of observing frequencies [Hz]
// and the requested weighting mode. In Variance mode a noise vector of the
// same length must be supplied; in Uniform mode noise may be nil.
func New(freqs []float64, mode WeightMode, noise []float64) (*Model, error) {
	if len(freqs) < 2 {
		return nil, ErrTooFewChannels
	}
	for _, f := range freqs {
		if !(f > 0) {
			return nil, fmt.Errorf("%w: got %g Hz", ErrNonPositiveFreq, f)
		}
	}

	m := &Model{
		Freqs:    append([]float64(nil), freqs...),
		LambdaSq: make([]float64, len(freqs)),
		Weights:  make([]float64, len(freqs)),
	}
	for i, f := range freqs {
		lam := SpeedOfLight / f
		m.LambdaSq[i] = lam * lam
	}

	switch mode {
	case Uniform:
		for i := range m.Weights {
			m.Weights[i] = 1.0
		}
	case Variance:
		if noise == nil {
			return nil, ErrInvalidWeightMode
		}
		if len(noise) != len(freqs) {
			return nil, ErrLengthMismatch
		}
		for i, n := range noise {
			if !(n > 0) {
				return nil, fmt.Errorf("%w: channel %d has noise %g", ErrNonPositiveNoise, i, n)
			}
			m.Weights[i] = 1.0 / (n * n)
		}
	default:
		return nil, ErrUnknownWeightMode
	}

	return m, nil
}

// NChan returns the number of frequency channels.
func (m *Model) NChan() int { return len(m.Freqs) }

// lambdaSqRange returns the spread of the wavelength-squared values.
func (m *Model) lambdaSqRange() float64 {
	lo, hi := m.LambdaSq[0], m.LambdaSq[0]
	for _, l := range m.LambdaSq[1:] {
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	return hi - lo
}

// NaturalFWHM returns the main-lobe full width at half maximum of the
// spread function implied by the full channel coverage, 2*sqrt(3) divided
// by the wavelength-squared range [rad/m^2].
func (m *Model) NaturalFWHM() float64 {
	return 2.0 * math.Sqrt(3.0) / m.lambdaSqRange()
}

// maxLambdaSqStep returns the largest gap between consecutive
// wavelength-squared samples, which sets the widest Faraday depth the
// data can constrain.
func (m *Model) maxLambdaSqStep() float64 {
	maxStep := 0.0
	for i := 1; i < len(m.LambdaSq); i++ {
		step := math.Abs(m.LambdaSq[i] - m.LambdaSq[i-1])
		if step > maxStep {
			maxStep = step
		}
	}
	return maxStep
}
