package hogbom

import (
	"context"

	"golang.org/x/sync/errgroup"

	"rmsynth3d/internal/models"
)

// RMSFSource supplies the spread function matched to a pixel. ok is
// false for pixels with no usable RMSF, which CLEAN marks degenerate.
type RMSFSource interface {
	RMSF(y, x int) (samples []complex128, fwhm float64, ok bool)
}

// CheckSupport verifies that a spread function of nPhi2 samples with its
// zero-offset sample at zeroIndex can be shifted across an FDF of nPhi
// samples.
func CheckSupport(nPhi, nPhi2, zeroIndex int) error {
	if zeroIndex < nPhi-1 || nPhi2-zeroIndex < nPhi {
		return ErrShortRMSF
	}
	return nil
}

// Summary aggregates the terminal states of one CLEAN run.
type Summary struct {
	DegeneratePixels int
	Converged        int
	MaxIterReached   int
	TotalIterations  int
}

// CubeResult holds the outputs of a full-cube CLEAN.
type CubeResult struct {
	// Clean is the restored FDF cube.
	Clean *models.ComplexCube

	// Components is the clean-component spectrum cube (sum of the
	// subtracted values at each depth).
	Components *models.ComplexCube

	// Residual is what remained after the subtractions.
	Residual *models.ComplexCube

	// IterCount maps each pixel to its number of subtractions.
	IterCount *models.Plane

	Summary Summary
}

// CleanCube deconvolves every pixel of a dirty FDF cube, data-parallel
// over image rows. zeroIndex locates the zero-offset sample of the
// spread functions the source returns. Cancellation is honoured at row
// boundaries only.
func (e *Engine) CleanCube(ctx context.Context, dirty *models.ComplexCube, src RMSFSource, zeroIndex, workers int) (*CubeResult, error) {
	if workers < 1 {
		workers = 1
	}

	res := &CubeResult{
		Clean:      models.NewComplexCube(dirty.NChan, dirty.NY, dirty.NX),
		Components: models.NewComplexCube(dirty.NChan, dirty.NY, dirty.NX),
		Residual:   models.NewComplexCube(dirty.NChan, dirty.NY, dirty.NX),
		IterCount:  models.NewPlane(dirty.NY, dirty.NX),
	}

	rowSummaries := make([]Summary, dirty.NY)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y := 0; y < dirty.NY; y++ {
		y := y
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			spec := make([]complex128, dirty.NChan)
			comps := make([]complex128, dirty.NChan)
			sum := &rowSummaries[y]
			for x := 0; x < dirty.NX; x++ {
				spec = dirty.Spectrum(y, x, spec)

				var pr PixelResult
				if samples, fwhm, ok := src.RMSF(y, x); ok {
					pr = e.CleanPixel(spec, samples, zeroIndex, fwhm)
				} else {
					pr = e.CleanPixel(spec, nil, zeroIndex, 0)
				}

				res.Clean.SetSpectrum(y, x, pr.Clean)
				res.Residual.SetSpectrum(y, x, pr.Residual)
				res.IterCount.Set(y, x, float64(pr.Iterations))

				for k := range comps {
					comps[k] = 0
				}
				for _, c := range pr.Components {
					comps[c.Index] += c.Value
				}
				res.Components.SetSpectrum(y, x, comps)

				sum.TotalIterations += pr.Iterations
				switch pr.State {
				case Converged:
					sum.Converged++
				case MaxIterReached:
					sum.MaxIterReached++
				case Degenerate:
					sum.DegeneratePixels++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range rowSummaries {
		res.Summary.DegeneratePixels += s.DegeneratePixels
		res.Summary.Converged += s.Converged
		res.Summary.MaxIterReached += s.MaxIterReached
		res.Summary.TotalIterations += s.TotalIterations
	}
	return res, nil
}
