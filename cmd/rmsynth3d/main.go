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
	"rmsynth3d/pkg/flagpattern"
	"rmsynth3d/pkg/frequency"
	"rmsynth3d/pkg/rmsf"
	"rmsynth3d/pkg/synth"
)

func main() {
	// Parse command line arguments
	qPath := flag.String("q", "", "FITS cube containing Stokes Q data")
	uPath := flag.String("u", "", "FITS cube containing Stokes U data")
	freqPath := flag.String("freq", "", "ASCII file containing the frequency vector in Hz")
	iPath := flag.String("i", "", "FITS cube containing a Stokes I model (optional)")
	noisePath := flag.String("noise", "", "ASCII file containing RMS noise values (optional)")
	weightType := flag.String("w", "", "weighting: 'uniform' (all 1s) or 'variance'")
	fitRMSF := flag.Bool("t", false, "fit a Gaussian to the RMSF main lobe")
	phiMax := flag.Float64("l", 0, "absolute max Faraday depth sampled in rad/m^2 (0 = auto)")
	dPhi := flag.Float64("d", 0, "width of a Faraday depth channel in rad/m^2 (0 = auto)")
	nSamples := flag.Float64("s", 0, "number of samples across the RMSF FWHM (0 = config default)")
	prefixOut := flag.String("o", "", "prefix to prepend to output files")
	numCores := flag.Int("cores", 0, "number of CPU cores to use (0 = config default)")
	configPath := flag.String("config", "rmsynth3d.yaml", "path to YAML configuration file")
	flag.Parse()

	// Validate inputs
	if *qPath == "" || *uPath == "" || *freqPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration; flags override file values
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *weightType != "" {
		cfg.Synthesis.WeightMode = *weightType
	}
	if *phiMax > 0 {
		cfg.Synthesis.PhiMax = *phiMax
	}
	if *dPhi > 0 {
		cfg.Synthesis.DPhi = *dPhi
	}
	if *nSamples > 0 {
		cfg.Synthesis.NSamples = *nSamples
	}
	if *fitRMSF {
		cfg.Synthesis.FitRMSF = true
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *prefixOut != "" {
		cfg.Output.Prefix = *prefixOut
	}

	fmt.Println("================================")
	fmt.Println("RM-SYNTHESIS ON STOKES Q & U CUBES")
	fmt.Println("================================")

	startTime := time.Now()

	// Step 1: Frequency model
	fmt.Println("Step 1: Building the frequency model...")
	freqs, err := fitscube.ReadColumn(*freqPath)
	if err != nil {
		log.Fatalf("Failed to read frequency file: %v", err)
	}
	var noise []float64
	if *noisePath != "" {
		if noise, err = fitscube.ReadColumn(*noisePath); err != nil {
			log.Fatalf("Failed to read noise file: %v", err)
		}
	}
	mode, err := frequency.ParseWeightMode(cfg.Synthesis.WeightMode)
	if err != nil {
		log.Fatalf("Invalid weighting mode: %v", err)
	}
	model, err := frequency.New(freqs, mode, noise)
	if err != nil {
		log.Fatalf("Failed to build frequency model: %v", err)
	}
	fmt.Printf("Loaded %d channels covering %.4f-%.4f GHz\n",
		model.NChan(), freqs[0]/1e9, freqs[len(freqs)-1]/1e9)

	// Step 2: Load the cubes
	fmt.Println("Step 2: Loading the Stokes cubes...")
	qCube, meta, err := fitscube.ReadCube(*qPath)
	if err != nil {
		log.Fatalf("Failed to read Stokes Q cube: %v", err)
	}
	uCube, _, err := fitscube.ReadCube(*uPath)
	if err != nil {
		log.Fatalf("Failed to read Stokes U cube: %v", err)
	}
	if qCube.NChan != model.NChan() {
		log.Fatalf("Cube has %d channels but the frequency file has %d", qCube.NChan, model.NChan())
	}
	fmt.Printf("Cube dimensions: %d x %d pixels, %d channels\n", qCube.NX, qCube.NY, qCube.NChan)

	if *iPath != "" {
		fmt.Println("Normalizing by the Stokes I model...")
		iCube, _, err := fitscube.ReadCube(*iPath)
		if err != nil {
			log.Fatalf("Failed to read Stokes I cube: %v", err)
		}
		if err := normalizeByStokesI(qCube, uCube, iCube); err != nil {
			log.Fatalf("Failed to normalize by Stokes I: %v", err)
		}
	}

	// Step 3: Group pixels by flag pattern
	fmt.Println("Step 3: Grouping pixels by flag pattern...")
	registry := flagpattern.Build(qCube, uCube)
	fmt.Printf("Found %d distinct flag patterns across %d pixels\n",
		registry.NumPatterns(), qCube.NY*qCube.NX)

	// Step 4: RM-synthesis
	fmt.Println("Step 4: Running RM-synthesis...")
	axis, err := model.AutoDepthAxis(cfg.Synthesis.PhiMax, cfg.Synthesis.DPhi, cfg.Synthesis.NSamples)
	if err != nil {
		log.Fatalf("Failed to build the Faraday depth axis: %v", err)
	}
	fmt.Printf("Faraday depth axis: %d samples, +-%.1f rad/m^2, spacing %.2f rad/m^2\n",
		axis.NPhi(), -axis.Phi[0], axis.DPhi)
	fmt.Printf("Theoretical RMSF FWHM: %.2f rad/m^2\n", model.NaturalFWHM())

	engine, err := synth.NewEngine(model, axis)
	if err != nil {
		log.Fatalf("Failed to initialize the synthesis engine: %v", err)
	}
	ctx := context.Background()
	result, err := engine.SynthesizeCube(ctx, qCube, uCube, registry, cfg.Processing.NumCores)
	if err != nil {
		log.Fatalf("RM-synthesis failed: %v", err)
	}

	// Step 5: Build the spread functions
	fmt.Println("Step 5: Building the rotation measure spread functions...")
	rmsfEngine, err := rmsf.NewEngine(model, axis, cfg.Synthesis.FitRMSF)
	if err != nil {
		log.Fatalf("Failed to initialize the RMSF engine: %v", err)
	}
	rmsfSet, err := rmsfEngine.BuildAll(ctx, registry, cfg.Processing.NumCores)
	if err != nil {
		log.Fatalf("RMSF construction failed: %v", err)
	}
	if rmsfSet.FallbackCount > 0 {
		log.Printf("Warning: main-lobe fit failed for %d pattern(s); using the analytic width",
			rmsfSet.FallbackCount)
	}

	// Step 6: Save the results
	fmt.Println("Step 6: Saving the FITS files...")
	meta.Axis3 = fitscube.LinAxisFor(axis.Phi)
	prefix := cfg.Output.Prefix

	fdfFile := prefix + "FDF_dirty.fits"
	fmt.Printf("> %s\n", fdfFile)
	if err := fitscube.WriteComplexCube(fdfFile, result.FDF, cfg.Output.WriteAmplitude, meta); err != nil {
		log.Fatalf("Failed to write the dirty FDF: %v", err)
	}

	rmsfCube, fwhmMap := expandRMSF(rmsfSet, registry)
	rmsfMeta := meta
	rmsfMeta.Axis3 = fitscube.LinAxisFor(rmsfSet.Phi2)
	rmsfFile := prefix + "RMSF.fits"
	fmt.Printf("> %s\n", rmsfFile)
	if err := fitscube.WriteRMSF(rmsfFile, rmsfCube, fwhmMap, rmsfMeta); err != nil {
		log.Fatalf("Failed to write the RMSF: %v", err)
	}

	peakPI, peakPhi, moment1 := synth.PeakMaps(result.FDF, axis)
	for _, out := range []struct {
		name  string
		plane *models.Plane
		bunit string
	}{
		{prefix + "peakPI.fits", peakPI, ""},
		{prefix + "peakRM.fits", peakPhi, "rad/m^2"},
		{prefix + "mom1.fits", moment1, "rad/m^2"},
	} {
		fmt.Printf("> %s\n", out.name)
		if err := fitscube.WritePlane(out.name, out.plane, meta, out.bunit); err != nil {
			log.Fatalf("Failed to write %s: %v", out.name, err)
		}
	}

	// Report the run summary
	fmt.Printf("\nRM-synthesis completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Run summary:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Distinct flag patterns: %d\n", result.Summary.Patterns)
	fmt.Printf("Degenerate pixels (blanked): %d\n", result.Summary.DegeneratePixels)
	if cfg.Synthesis.FitRMSF {
		fmt.Printf("Patterns needing the analytic FWHM fallback: %d\n", rmsfSet.FallbackCount)
	}
}

// normalizeByStokesI divides the Q and U cubes voxel-by-voxel by a model
// Stokes I cube, turning the synthesis inputs into fractional
// polarization. Non-finite or zero model values blank the voxel.
func normalizeByStokesI(q, u, i *models.Cube) error {
	if i.NChan != q.NChan || i.NY != q.NY || i.NX != q.NX {
		return fmt.Errorf("Stokes I cube shape %dx%dx%d does not match Q/U",
			i.NX, i.NY, i.NChan)
	}
	nan := math.NaN()
	for idx := range q.Data {
		den := i.Data[idx]
		if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
			q.Data[idx] = nan
			u.Data[idx] = nan
			continue
		}
		q.Data[idx] /= den
		u.Data[idx] /= den
	}
	return nil
}

// expandRMSF lays the pattern-indexed spread functions out per pixel for
// persistence, so downstream tools need no knowledge of the pattern
// grouping.
func expandRMSF(set *rmsf.Set, reg *flagpattern.Registry) (*models.ComplexCube, *models.Plane) {
	ny, nx := reg.Dims()
	cube := models.NewComplexCube(len(set.Phi2), ny, nx)
	fwhm := models.NewPlane(ny, nx)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			pat := &set.Patterns[reg.PatternOf(y, x)]
			cube.SetSpectrum(y, x, pat.Samples)
			fwhm.Set(y, x, pat.FWHM)
		}
	}
	return cube, fwhm
}
