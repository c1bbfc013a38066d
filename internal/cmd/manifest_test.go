package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifestAppliesOverrides(t *testing.T) {
	path := writeManifest(t, `
pairs_file: /srv/insar/pairs.txt
workers: 6
dem_basename: dem_socal
roi: "[34.5, 35.0, -118.5, -117.9]"
processor: topsApp.py
launch_rate: 0.5
output: results.jsonl
`)

	m, err := loadManifest(path)
	require.NoError(t, err)

	cfg := &config.Config{DataDir: "data", PairsFile: "data/pairs.txt", Workers: 2, DEMBaseName: "dem_standard"}
	require.NoError(t, m.apply(cfg))

	assert.Equal(t, "/srv/insar/pairs.txt", cfg.PairsFile)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "dem_socal", cfg.DEMBaseName)
	require.NotNil(t, cfg.ROI)
	assert.Equal(t, 34.5, cfg.ROI.South)
	assert.Equal(t, -117.9, cfg.ROI.East)
	assert.Equal(t, 0.5, cfg.LaunchRate)
	assert.Equal(t, "results.jsonl", m.Output)
}

func TestManifestDataDirRederivesDefaults(t *testing.T) {
	path := writeManifest(t, "data_dir: /srv/insar\n")
	m, err := loadManifest(path)
	require.NoError(t, err)

	cfg := &config.Config{
		DataDir:    "data",
		PairsFile:  filepath.Join("data", "pairs.txt"),
		RunLogPath: filepath.Join("data", "runlog.db"),
		Workers:    2,
	}
	require.NoError(t, m.apply(cfg))

	assert.Equal(t, "/srv/insar", cfg.DataDir)
	assert.Equal(t, filepath.Join("/srv/insar", "pairs.txt"), cfg.PairsFile)
	assert.Equal(t, filepath.Join("/srv/insar", "runlog.db"), cfg.RunLogPath)
}

func TestManifestLeavesExplicitPathsAlone(t *testing.T) {
	path := writeManifest(t, "data_dir: /srv/insar\n")
	m, err := loadManifest(path)
	require.NoError(t, err)

	cfg := &config.Config{
		DataDir:    "data",
		PairsFile:  "/etc/insar/pairs.txt",
		RunLogPath: "/var/lib/insar/runlog.db",
	}
	require.NoError(t, m.apply(cfg))

	assert.Equal(t, "/etc/insar/pairs.txt", cfg.PairsFile)
	assert.Equal(t, "/var/lib/insar/runlog.db", cfg.RunLogPath)
}

func TestManifestRejectsMalformedROI(t *testing.T) {
	path := writeManifest(t, `roi: "one, two"`)
	m, err := loadManifest(path)
	require.NoError(t, err)

	require.Error(t, m.apply(&config.Config{}))
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := loadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
