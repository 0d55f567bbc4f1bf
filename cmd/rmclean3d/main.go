package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"rmsynth3d/internal/models"
	"rmsynth3d/pkg/config"
	"rmsynth3d/pkg/fitscube"
	"rmsynth3d/pkg/hogbom"
)

func main() {
	// Parse command line arguments
	fdfPath := flag.String("fdf", "", "FITS cube containing the dirty FDF")
	rmsfPath := flag.String("rmsf", "", "FITS cube containing the RMSF and FWHM map")
	cutoff := flag.Float64("c", -1, "CLEAN cutoff in mJy (negative = config default)")
	maxIter := flag.Int("n", -1, "maximum number of CLEAN iterations (negative = config default)")
	gain := flag.Float64("g", -1, "CLEAN loop gain (negative = config default)")
	prefixOut := flag.String("o", "", "prefix to prepend to output files")
	numCores := flag.Int("cores", 0, "number of CPU cores to use (0 = config default)")
	configPath := flag.String("config", "rmsynth3d.yaml", "path to YAML configuration file")
	flag.Parse()

	// Validate inputs
	if *fdfPath == "" || *rmsfPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration; flags override file values
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(cfg, *cutoff, *gain, *maxIter, *numCores, *prefixOut)

	fmt.Println("================================")
	fmt.Println("RM-CLEAN ON A DIRTY FDF CUBE")
	fmt.Println("================================")

	// Step 1: Load the dirty FDF
	fmt.Println("Step 1: Loading the dirty FDF cube...")
	dirty, meta, err := fitscube.ReadComplexCube(*fdfPath)
	if err != nil {
		log.Fatalf("Failed to read the dirty FDF: %v", err)
	}
	fmt.Printf("Cube dimensions: %d x %d pixels, %d depth samples\n", dirty.NX, dirty.NY, dirty.NChan)
	if meta.Axis3.CDELT <= 0 {
		log.Fatalf("Dirty FDF has a non-positive depth spacing (CDELT3 = %g)", meta.Axis3.CDELT)
	}

	// Step 2: Load the RMSF
	fmt.Println("Step 2: Loading the RMSF cube...")
	rmsfCube, fwhmMap, rmsfMeta, err := fitscube.ReadRMSF(*rmsfPath)
	if err != nil {
		log.Fatalf("Failed to read the RMSF: %v", err)
	}
	if rmsfCube.NY != dirty.NY || rmsfCube.NX != dirty.NX {
		log.Fatalf("RMSF spatial dimensions %dx%d do not match the FDF %dx%d",
			rmsfCube.NX, rmsfCube.NY, dirty.NX, dirty.NY)
	}

	// Locate the zero-offset sample on the RMSF depth axis
	zeroIndex := int(math.Round(rmsfMeta.Axis3.CRPIX - 1 - rmsfMeta.Axis3.CRVAL/rmsfMeta.Axis3.CDELT))
	if err := hogbom.CheckSupport(dirty.NChan, rmsfCube.NChan, zeroIndex); err != nil {
		log.Fatalf("RMSF cannot be shifted across the FDF: %v", err)
	}

	// Step 3: Deconvolve
	fmt.Println("Step 3: Running Hogbom CLEAN...")
	params := hogbom.Params{
		Gain:    cfg.Clean.Gain,
		Cutoff:  cfg.Clean.Cutoff,
		MaxIter: cfg.Clean.MaxIter,
	}
	engine, err := hogbom.NewEngine(params, meta.Axis3.CDELT)
	if err != nil {
		log.Fatalf("Invalid CLEAN parameters: %v", err)
	}

	// The cutoff is given in mJy; scale the FDF up so amplitudes match
	scaleCube(dirty, 1e3)

	startTime := time.Now()
	src := &cubeRMSFSource{cube: rmsfCube, fwhm: fwhmMap}
	result, err := engine.CleanCube(context.Background(), dirty, src, zeroIndex, cfg.Processing.NumCores)
	if err != nil {
		log.Fatalf("RM-clean failed: %v", err)
	}
	fmt.Printf("RM-clean completed in %.2f seconds\n", time.Since(startTime).Seconds())

	scaleCube(result.Clean, 1e-3)
	scaleCube(result.Components, 1e-3)
	scaleCube(result.Residual, 1e-3)

	// Step 4: Save the results
	fmt.Println("Step 4: Saving the FITS files...")
	prefix := cfg.Output.Prefix

	ccAmp := componentAmplitudes(result.Components)
	cleanFile := prefix + "FDF_clean.fits"
	fmt.Printf("> %s\n", cleanFile)
	if err := fitscube.WriteComplexCube(cleanFile, result.Clean, true, meta, ccAmp); err != nil {
		log.Fatalf("Failed to write the clean FDF: %v", err)
	}

	iterFile := prefix + "CLEAN_nIter.fits"
	fmt.Printf("> %s\n", iterFile)
	if err := fitscube.WritePlane(iterFile, result.IterCount, meta, "Iterations"); err != nil {
		log.Fatalf("Failed to write the iteration map: %v", err)
	}

	// Report the run summary
	fmt.Printf("\nRun summary:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Converged pixels: %d\n", result.Summary.Converged)
	fmt.Printf("Pixels stopped at the iteration limit: %d\n", result.Summary.MaxIterReached)
	fmt.Printf("Degenerate pixels (blanked): %d\n", result.Summary.DegeneratePixels)
	fmt.Printf("Total CLEAN iterations: %d\n", result.Summary.TotalIterations)
}

// applyOverrides folds the command-line values into the loaded
// configuration. Negative cutoff, gain and maxIter mean "keep the
// configured value", so an explicit zero cutoff or iteration limit can
// still be requested from the command line.
func applyOverrides(cfg *config.Config, cutoff, gain float64, maxIter, numCores int, prefix string) {
	if cutoff >= 0 {
		cfg.Clean.Cutoff = cutoff
	}
	if gain >= 0 {
		cfg.Clean.Gain = gain
	}
	if maxIter >= 0 {
		cfg.Clean.MaxIter = maxIter
	}
	if numCores > 0 {
		cfg.Processing.NumCores = numCores
	}
	if prefix != "" {
		cfg.Output.Prefix = prefix
	}
}

// cubeRMSFSource adapts a per-pixel RMSF cube and FWHM map read from
// disk to the CLEAN engine's source interface. Safe for concurrent use:
// every call returns a fresh spectrum.
type cubeRMSFSource struct {
	cube *models.ComplexCube
	fwhm *models.Plane
}

func (s *cubeRMSFSource) RMSF(y, x int) ([]complex128, float64, bool) {
	fwhm := s.fwhm.At(y, x)
	if math.IsNaN(fwhm) || fwhm <= 0 {
		return nil, math.NaN(), false
	}
	return s.cube.Spectrum(y, x, nil), fwhm, true
}

func scaleCube(c *models.ComplexCube, f float64) {
	s := complex(f, 0)
	for i := range c.Data {
		c.Data[i] *= s
	}
}

// componentAmplitudes collapses the complex component cube to the
// amplitude plane persisted alongside the clean FDF.
func componentAmplitudes(c *models.ComplexCube) *models.Cube {
	out := models.NewCube(c.NChan, c.NY, c.NX)
	for i, v := range c.Data {
		out.Data[i] = math.Hypot(real(v), imag(v))
	}
	return out
}
