// Package config provides configuration loading and management for insaraps.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Temporal filter methods.
const (
	TemporalGaussian   = "gaussian"
	TemporalTriangular = "triangular"
	TemporalMean       = "mean"
)

// Spatial filter methods.
const (
	SpatialButterworth = "butterworth"
	SpatialGaussian    = "gaussian"
)

// NaN interpolation methods for the spatial filter pre-pass.
const (
	InterpNearest = "nearest"
	InterpIDW     = "idw"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is the size of the worker group used for the
		// tile-parallel time series computation
		NumWorkers int `yaml:"numWorkers"`

		// TileRows and TileCols give the tile grid shape used to
		// partition the raster extent
		TileRows int `yaml:"tileRows"`
		TileCols int `yaml:"tileCols"`

		// ScratchDir is where per-tile intermediate arrays are persisted
		ScratchDir string `yaml:"scratchDir"`
	} `yaml:"processing"`

	// Temporal low-pass filter parameters
	Temporal struct {
		// Method is one of gaussian, triangular or mean
		Method string `yaml:"method"`

		// CutoffYears is the filter cut-off time period in years
		CutoffYears float64 `yaml:"cutoffYears"`

		// MinEpochs is the minimum number of valid epochs a pixel needs
		// before it is filtered at all
		MinEpochs int `yaml:"minEpochs"`
	} `yaml:"temporal"`

	// Spatial low-pass filter parameters
	Spatial struct {
		// Method is one of butterworth or gaussian
		Method string `yaml:"method"`

		// CutoffKm is the filter cut-off distance in kilometers.
		// Zero means the cut-off is estimated per time step from the
		// covariance of the phase data.
		CutoffKm float64 `yaml:"cutoffKm"`

		// Order is the Butterworth filter order
		Order int `yaml:"order"`

		// NaNFill enables spatial interpolation of NaN pixels before
		// filtering; when disabled NaNs are zero-filled instead
		NaNFill bool `yaml:"nanFill"`

		// InterpMethod selects the interpolation used when NaNFill is
		// enabled, one of nearest or idw
		InterpMethod string `yaml:"interpMethod"`
	} `yaml:"spatial"`

	// Output parameters
	Output struct {
		// SaveIntermediary determines whether phase slices are dumped as
		// images at each pipeline stage
		SaveIntermediary bool `yaml:"saveIntermediary"`

		// IntermediaryDir is where the stage dumps are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.TileRows = 1
	cfg.Processing.TileCols = 1
	cfg.Processing.ScratchDir = "scratch"

	cfg.Temporal.Method = TemporalGaussian
	cfg.Temporal.CutoffYears = 1.0
	cfg.Temporal.MinEpochs = 3

	cfg.Spatial.Method = SpatialButterworth
	cfg.Spatial.CutoffKm = 0 // estimate per time step
	cfg.Spatial.Order = 1
	cfg.Spatial.NaNFill = false
	cfg.Spatial.InterpMethod = InterpNearest

	cfg.Output.SaveIntermediary = false
	cfg.Output.IntermediaryDir = "intermediary_results"
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

// Validate checks the configuration for invalid filter method and cutoff
// combinations. Errors found here are fatal to the run.
func (cfg *Config) Validate() error {
	switch cfg.Temporal.Method {
	case TemporalGaussian, TemporalTriangular, TemporalMean:
	default:
		return fmt.Errorf("invalid temporal filter method %q", cfg.Temporal.Method)
	}
	if cfg.Temporal.CutoffYears <= 0 {
		return fmt.Errorf("temporal cutoff must be positive, got %v", cfg.Temporal.CutoffYears)
	}
	if cfg.Temporal.MinEpochs < 1 {
		return fmt.Errorf("temporal minimum epoch threshold must be at least 1, got %d", cfg.Temporal.MinEpochs)
	}

	switch cfg.Spatial.Method {
	case SpatialButterworth, SpatialGaussian:
	default:
		return fmt.Errorf("invalid spatial filter method %q", cfg.Spatial.Method)
	}
	if cfg.Spatial.CutoffKm < 0 {
		return fmt.Errorf("spatial cutoff must be zero (auto) or positive, got %v", cfg.Spatial.CutoffKm)
	}
	if cfg.Spatial.Method == SpatialButterworth && cfg.Spatial.Order < 1 {
		return fmt.Errorf("butterworth order must be at least 1, got %d", cfg.Spatial.Order)
	}
	if cfg.Spatial.NaNFill {
		switch cfg.Spatial.InterpMethod {
		case InterpNearest, InterpIDW:
		default:
			return fmt.Errorf("invalid interpolation method %q", cfg.Spatial.InterpMethod)
		}
	}

	if cfg.Processing.NumWorkers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", cfg.Processing.NumWorkers)
	}
	if cfg.Processing.TileRows < 1 || cfg.Processing.TileCols < 1 {
		return fmt.Errorf("tile grid must be at least 1x1, got %dx%d",
			cfg.Processing.TileRows, cfg.Processing.TileCols)
	}

	return nil
}
