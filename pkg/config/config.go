// Package config provides configuration loading and management for
// rmsynth3d. It handles loading configuration from YAML files and
// provides default values. Command-line flags override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Synthesis parameters
	Synthesis struct {
		// WeightMode selects the channel weighting: "uniform" or "variance"
		WeightMode string `yaml:"weightMode"`

		// PhiMax is the absolute maximum trial Faraday depth in rad/m^2
		// (0 selects it automatically from the channel coverage)
		PhiMax float64 `yaml:"phiMax"`

		// DPhi is the trial-depth sample spacing in rad/m^2
		// (0 selects it automatically)
		DPhi float64 `yaml:"dPhi"`

		// NSamples is the number of samples across the RMSF main lobe
		// used when the spacing is selected automatically
		NSamples float64 `yaml:"nSamples"`

		// FitRMSF requests a Gaussian fit to the RMSF main lobe
		FitRMSF bool `yaml:"fitRMSF"`
	} `yaml:"synthesis"`

	// Clean parameters
	Clean struct {
		// Cutoff is the residual amplitude at which CLEAN converges
		Cutoff float64 `yaml:"cutoff"`

		// Gain is the CLEAN loop gain
		Gain float64 `yaml:"gain"`

		// MaxIter bounds the CLEAN iterations per pixel
		MaxIter int `yaml:"maxIter"`
	} `yaml:"clean"`

	// Output parameters
	Output struct {
		// Prefix is prepended to every output filename
		Prefix string `yaml:"prefix"`

		// WriteAmplitude also writes |FDF| planes for the dirty FDF
		WriteAmplitude bool `yaml:"writeAmplitude"`

		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default synthesis parameters
	cfg.Synthesis.WeightMode = "uniform"
	cfg.Synthesis.PhiMax = 0 // auto
	cfg.Synthesis.DPhi = 0   // auto
	cfg.Synthesis.NSamples = 5
	cfg.Synthesis.FitRMSF = false

	// Set default clean parameters
	cfg.Clean.Cutoff = 1.0
	cfg.Clean.Gain = 0.1
	cfg.Clean.MaxIter = 1000

	// Set default output parameters
	cfg.Output.Prefix = ""
	cfg.Output.WriteAmplitude = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
