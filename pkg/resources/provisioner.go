// Package resources provisions the run-wide shared resources: the
// terrain model (DEM raster plus metadata sidecars) and the pool of
// orbit ephemeris files.
//
// Provisioning runs exactly once, before the worker pool starts, and is
// a synchronization barrier: no unit of work begins until shared
// resources are either ready or explicitly unavailable-but-acknowledged.
// The acquisition procedures themselves are external collaborators
// reached through the TerrainFetcher and EphemerisFetcher interfaces.
package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
)

// EphemerisPattern matches precise-orbit ephemeris files by name.
const EphemerisPattern = "*.{EOF,eof}"

// BoundingBox is the geographic region used for terrain acquisition,
// in degrees.
type BoundingBox struct {
	South float64
	North float64
	West  float64
	East  float64
}

// TerrainFetcher acquires a terrain raster named <base>.wgs84 plus its
// .xml and .vrt sidecars into outDir.
type TerrainFetcher interface {
	FetchTerrain(ctx context.Context, box BoundingBox, base, outDir string) error
}

// EphemerisFetcher acquires ephemeris files covering [startDate, endDate]
// (YYYYMMDD, inclusive) into outDir. Acquisition is best-effort: partial
// results are acceptable and surface later as per-unit failures.
type EphemerisFetcher interface {
	FetchEphemeris(ctx context.Context, startDate, endDate, outDir string) error
}

// Shared holds the provisioned run-wide resources. It is read-only once
// returned; units link from it but never mutate it.
type Shared struct {
	// TerrainPath is the expected terrain raster location. The file may
	// be absent when acquisition was skipped; sandboxes then stage
	// whatever exists and the external processor reports the gap.
	TerrainPath string

	// TerrainSidecars are the companion metadata files (.xml, .vrt).
	TerrainSidecars []string

	// EphemerisDir contains the acquired ephemeris files.
	EphemerisDir string
}

// ResourceError is a fatal run-level provisioning failure. It aborts the
// run before any worker starts, since every unit depends on the shared
// resources.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return "resources: " + e.Op + ": " + e.Err.Error()
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Config configures the provisioner.
type Config struct {
	// DEMDir is where the terrain artifact lives.
	DEMDir string

	// DEMBaseName is the terrain artifact base name; the raster is
	// <DEMBaseName>.wgs84.
	DEMBaseName string

	// OrbitDir is where ephemeris files live.
	OrbitDir string

	// ROI is the acquisition bounding box. Nil degrades terrain
	// provisioning to manual staging.
	ROI *BoundingBox

	// APIKey is the terrain acquisition credential. Empty degrades
	// terrain provisioning to manual staging.
	APIKey string
}

// Provisioner ensures shared resources exist before a run.
type Provisioner struct {
	cfg     Config
	terrain TerrainFetcher
	ephem   EphemerisFetcher
	log     *zap.Logger
}

// New creates a provisioner. Either fetcher may be nil, which disables
// the corresponding acquisition (existing artifacts are still used).
func New(cfg Config, terrain TerrainFetcher, ephem EphemerisFetcher, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{cfg: cfg, terrain: terrain, ephem: ephem, log: log}
}

// Provision ensures the terrain artifact and ephemeris pool exist,
// acquiring them through the external collaborators where possible.
//
// Only terrain metadata missing after an acquisition attempt is fatal;
// everything else (missing credential or bounding box, thin ephemeris
// coverage) degrades with a warning and surfaces later per unit.
func (p *Provisioner) Provision(ctx context.Context, pairList []pairs.Pair) (*Shared, error) {
	shared := &Shared{
		TerrainPath:  filepath.Join(p.cfg.DEMDir, p.cfg.DEMBaseName+".wgs84"),
		EphemerisDir: p.cfg.OrbitDir,
	}
	shared.TerrainSidecars = []string{shared.TerrainPath + ".xml", shared.TerrainPath + ".vrt"}

	if err := p.provisionTerrain(ctx, shared); err != nil {
		return nil, err
	}
	p.provisionEphemeris(ctx, pairList)

	return shared, nil
}

func (p *Provisioner) provisionTerrain(ctx context.Context, shared *Shared) error {
	if terrainComplete(shared) {
		p.log.Info("terrain artifact already present", zap.String("path", shared.TerrainPath))
		return nil
	}

	switch {
	case p.cfg.ROI == nil:
		p.log.Warn("no bounding box configured, skipping terrain acquisition; stage the terrain artifact manually",
			zap.String("expected", shared.TerrainPath))
		return nil
	case p.cfg.APIKey == "":
		p.log.Warn("no terrain credential configured, skipping terrain acquisition",
			zap.String("expected", shared.TerrainPath))
		return nil
	case p.terrain == nil:
		p.log.Warn("no terrain fetcher configured, skipping terrain acquisition",
			zap.String("expected", shared.TerrainPath))
		return nil
	}

	p.log.Info("acquiring terrain artifact",
		zap.String("base", p.cfg.DEMBaseName),
		zap.Float64("south", p.cfg.ROI.South),
		zap.Float64("north", p.cfg.ROI.North),
		zap.Float64("west", p.cfg.ROI.West),
		zap.Float64("east", p.cfg.ROI.East))

	if err := p.terrain.FetchTerrain(ctx, *p.cfg.ROI, p.cfg.DEMBaseName, p.cfg.DEMDir); err != nil {
		return &ResourceError{Op: "acquire terrain", Err: err}
	}

	// The external processor refuses a raster without its metadata, so a
	// half-acquired terrain artifact would fail every unit. Abort now.
	for _, sidecar := range shared.TerrainSidecars {
		if _, err := os.Stat(sidecar); err != nil {
			return &ResourceError{Op: "verify terrain metadata", Err: fmt.Errorf("missing sidecar %s", sidecar)}
		}
	}

	p.log.Info("terrain artifact ready", zap.String("path", shared.TerrainPath))
	return nil
}

func (p *Provisioner) provisionEphemeris(ctx context.Context, pairList []pairs.Pair) {
	startDate, endDate := pairs.DateRange(pairList)
	if startDate == "" {
		p.log.Warn("no acquisition dates extractable from pair list, skipping ephemeris acquisition")
		return
	}

	if p.ephem != nil {
		p.log.Info("acquiring ephemeris files",
			zap.String("start", startDate),
			zap.String("end", endDate),
			zap.String("dir", p.cfg.OrbitDir))

		if err := p.ephem.FetchEphemeris(ctx, startDate, endDate, p.cfg.OrbitDir); err != nil {
			// Best-effort: thin coverage surfaces as per-unit failures.
			p.log.Warn("ephemeris acquisition failed", zap.Error(err))
		}
	}

	n := CountEphemeris(p.cfg.OrbitDir)
	if n < 2 {
		p.log.Warn("very few ephemeris files present, units may fail geometric modeling",
			zap.Int("count", n),
			zap.String("dir", p.cfg.OrbitDir))
		return
	}
	p.log.Info("ephemeris pool ready", zap.Int("count", n))
}

// terrainComplete reports whether the raster and both sidecars exist.
func terrainComplete(shared *Shared) bool {
	if _, err := os.Stat(shared.TerrainPath); err != nil {
		return false
	}
	for _, sidecar := range shared.TerrainSidecars {
		if _, err := os.Stat(sidecar); err != nil {
			return false
		}
	}
	return true
}

// ListEphemeris returns the ephemeris files in dir, by name pattern.
func ListEphemeris(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match(EphemerisPattern, entry.Name()); ok {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out
}

// CountEphemeris counts the ephemeris files in dir.
func CountEphemeris(dir string) int {
	return len(ListEphemeris(dir))
}
