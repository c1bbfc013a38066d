// Package config loads the immutable process configuration.
//
// Configuration is resolved once at startup from environment variables
// (INSAR_ prefix), an optional insar.yaml file, and defaults, in that
// precedence order. The resulting Config is passed by reference into
// every component and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey indicates that no terrain-acquisition credential is
// configured. The run command treats this as fatal at startup.
var ErrMissingAPIKey = errors.New("INSAR_API_KEY is not set")

// BoundingBox is a geographic region of interest in degrees.
type BoundingBox struct {
	South float64
	North float64
	West  float64
	East  float64
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("S=%g N=%g W=%g E=%g", b.South, b.North, b.West, b.East)
}

// Config is the resolved process configuration.
type Config struct {
	// APIKey is the access credential for terrain acquisition.
	APIKey string

	// DEMBaseName is the base name of the terrain artifact
	// (<DEMBaseName>.wgs84 plus .xml/.vrt sidecars).
	DEMBaseName string

	// ROI is the geographic bounding box used for terrain acquisition.
	// Nil when unset; terrain provisioning then degrades to manual.
	ROI *BoundingBox

	// Workers is the worker pool width.
	Workers int

	// DataDir is the root of the on-disk layout (raw scenes, terrain,
	// ephemerides, run sandboxes).
	DataDir string

	// PairsFile is the pair list location.
	PairsFile string

	// Processor is the external multi-step processor executable.
	Processor string

	// OrbitFetcher optionally pins the ephemeris acquisition tool to an
	// explicit path instead of discovery.
	OrbitFetcher string

	// TerrainFetcher is the terrain acquisition executable.
	TerrainFetcher string

	// StepAttempts and StepDelay control per-step retry in Phase 1.
	StepAttempts int
	StepDelay    time.Duration

	// Phase2Attempts and Phase2Delay control the single contiguous
	// Phase 2 invocation. Phase 2 is expensive to restart, so the
	// default does not retry at all.
	Phase2Attempts int
	Phase2Delay    time.Duration

	// StepTimeout bounds each external processor invocation.
	// Zero disables the timeout.
	StepTimeout time.Duration

	// LaunchRate limits how many pipeline units may start per second
	// across the pool. Zero means unlimited.
	LaunchRate float64

	// RunLogPath is the run-history database location. Empty disables
	// run history.
	RunLogPath string

	// LogLevel selects the CLI log level (debug|info|warn|error).
	LogLevel string
}

// Directory layout, by convention relative to DataDir.

func (c *Config) RawDir() string   { return filepath.Join(c.DataDir, "raw") }
func (c *Config) DEMDir() string   { return filepath.Join(c.DataDir, "dem") }
func (c *Config) OrbitDir() string { return filepath.Join(c.DataDir, "orbit_data") }
func (c *Config) RunsDir() string  { return filepath.Join(c.DataDir, "runs") }

// TerrainBase is the expected terrain raster path; its .xml and .vrt
// sidecars live next to it.
func (c *Config) TerrainBase() string {
	return filepath.Join(c.DEMDir(), c.DEMBaseName+".wgs84")
}

// Validate checks the startup-fatal conditions. Missing credential is
// fatal here even though the provisioner itself degrades gracefully:
// a run without credential or pre-staged terrain can only fail late and
// expensively.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Load resolves the configuration from environment, optional config
// file, and defaults. Malformed values (unparseable ROI, bad numbers)
// are construction errors, not deferred warnings.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSAR")
	v.AutomaticEnv()

	v.SetDefault("dem_basename", "dem_standard")
	v.SetDefault("workers", 2)
	v.SetDefault("data_dir", "data")
	v.SetDefault("processor", "topsApp.py")
	v.SetDefault("terrain_fetcher", "get_dem")
	v.SetDefault("step_attempts", 2)
	v.SetDefault("step_delay", "3s")
	v.SetDefault("phase2_attempts", 1)
	v.SetDefault("phase2_delay", "5s")
	v.SetDefault("step_timeout", "0")
	v.SetDefault("launch_rate", 0.0)
	v.SetDefault("log_level", "info")

	// Optional config file next to the data tree; absence is fine.
	v.SetConfigName("insar")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		APIKey:         v.GetString("api_key"),
		DEMBaseName:    v.GetString("dem_basename"),
		Workers:        v.GetInt("workers"),
		DataDir:        v.GetString("data_dir"),
		Processor:      v.GetString("processor"),
		OrbitFetcher:   v.GetString("orbit_fetcher"),
		TerrainFetcher: v.GetString("terrain_fetcher"),
		StepAttempts:   v.GetInt("step_attempts"),
		StepDelay:      v.GetDuration("step_delay"),
		Phase2Attempts: v.GetInt("phase2_attempts"),
		Phase2Delay:    v.GetDuration("phase2_delay"),
		StepTimeout:    v.GetDuration("step_timeout"),
		LaunchRate:     v.GetFloat64("launch_rate"),
		RunLogPath:     v.GetString("runlog_path"),
		LogLevel:       v.GetString("log_level"),
	}

	cfg.PairsFile = v.GetString("pairs_file")
	if cfg.PairsFile == "" {
		cfg.PairsFile = filepath.Join(cfg.DataDir, "pairs.txt")
	}
	if cfg.RunLogPath == "" {
		cfg.RunLogPath = filepath.Join(cfg.DataDir, "runlog.db")
	}

	if roi := v.GetString("roi"); roi != "" {
		box, err := ParseROI(roi)
		if err != nil {
			return nil, fmt.Errorf("parse INSAR_ROI: %w", err)
		}
		cfg.ROI = box
	}

	return cfg, nil
}

// ParseROI parses a bounding box given as four numbers
// south,north,west,east in bracketed or bare comma/space/semicolon
// separated form, e.g. "[34.5, 35.0, -118.5, -117.9]".
func ParseROI(s string) (*BoundingBox, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "[")
	cleaned = strings.TrimSuffix(cleaned, "]")
	cleaned = strings.ReplaceAll(cleaned, ";", ",")
	cleaned = strings.ReplaceAll(cleaned, " ", ",")

	parts := make([]string, 0, 4)
	for _, p := range strings.Split(cleaned, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 values south,north,west,east, got %d in %q", len(parts), s)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", p)
		}
		vals[i] = f
	}

	return &BoundingBox{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}, nil
}
