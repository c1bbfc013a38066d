package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
)

// runManifest is the optional YAML job file accepted by `insar run
// --job`. Every field overrides the corresponding environment or
// default value; absent fields leave the resolved configuration alone.
type runManifest struct {
	PairsFile   string  `yaml:"pairs_file"`
	DataDir     string  `yaml:"data_dir"`
	Workers     int     `yaml:"workers"`
	DEMBaseName string  `yaml:"dem_basename"`
	ROI         string  `yaml:"roi"`
	Processor   string  `yaml:"processor"`
	LaunchRate  float64 `yaml:"launch_rate"`
	Output      string  `yaml:"output"`
}

func loadManifest(path string) (*runManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job manifest: %w", err)
	}
	var m runManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse job manifest: %w", err)
	}
	return &m, nil
}

// apply folds the manifest into an already-resolved configuration.
func (m *runManifest) apply(cfg *config.Config) error {
	if m.DataDir != "" {
		// Re-derive the defaults that hang off the data root.
		if cfg.PairsFile == filepath.Join(cfg.DataDir, "pairs.txt") {
			cfg.PairsFile = filepath.Join(m.DataDir, "pairs.txt")
		}
		if cfg.RunLogPath == filepath.Join(cfg.DataDir, "runlog.db") {
			cfg.RunLogPath = filepath.Join(m.DataDir, "runlog.db")
		}
		cfg.DataDir = m.DataDir
	}
	if m.PairsFile != "" {
		cfg.PairsFile = m.PairsFile
	}
	if m.Workers > 0 {
		cfg.Workers = m.Workers
	}
	if m.DEMBaseName != "" {
		cfg.DEMBaseName = m.DEMBaseName
	}
	if m.Processor != "" {
		cfg.Processor = m.Processor
	}
	if m.LaunchRate > 0 {
		cfg.LaunchRate = m.LaunchRate
	}
	if m.ROI != "" {
		box, err := config.ParseROI(m.ROI)
		if err != nil {
			return fmt.Errorf("manifest roi: %w", err)
		}
		cfg.ROI = box
	}
	return nil
}
