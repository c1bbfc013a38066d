package resources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/retry"
)

// Well-known install locations for the ephemeris acquisition tool.
// Checked after the explicit override and $PATH.
var ephemerisToolCandidates = []string{
	"/opt/conda/envs/insar/share/isce2/topsStack/dloadOrbits.py",
	"/opt/conda/envs/isce/share/isce2/topsStack/dloadOrbits.py",
	"/usr/local/share/isce2/topsStack/dloadOrbits.py",
	"/usr/share/isce2/topsStack/dloadOrbits.py",
}

var ephemerisToolNames = []string{"dloadOrbits.py", "dloadOrbits"}

// ErrNoEphemerisTool indicates the acquisition tool could not be found
// anywhere. Callers treat this as a warning: ephemeris files can be
// staged manually.
var ErrNoEphemerisTool = errors.New("ephemeris acquisition tool not found")

// ExecTerrainFetcher acquires terrain by invoking an external command:
//
//	<command> --south S --north N --west W --east E --name <base> --out <dir>
//
// with the credential passed through the environment rather than argv,
// so it never appears in process listings. The command must leave
// <dir>/<base>.wgs84 plus .xml/.vrt sidecars behind on success.
type ExecTerrainFetcher struct {
	// Command is the acquisition executable.
	Command string

	// APIKey is exported to the child as OPENTOPO_API_KEY.
	APIKey string

	// Policy governs retries. The zero value defaults to 5 attempts
	// with linearly growing delay, matching how slowly the upstream
	// service recovers from overload.
	Policy retry.Policy

	Log *zap.Logger
}

func (f *ExecTerrainFetcher) FetchTerrain(ctx context.Context, box BoundingBox, base, outDir string) error {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create terrain dir: %w", err)
	}

	policy := f.Policy
	if policy.Attempts == 0 {
		policy = retry.Linear(5, 10*time.Second)
	}

	args := []string{
		"--south", formatDegrees(box.South),
		"--north", formatDegrees(box.North),
		"--west", formatDegrees(box.West),
		"--east", formatDegrees(box.East),
		"--name", base,
		"--out", outDir,
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, f.Command, args...)
		cmd.Env = append(os.Environ(), "OPENTOPO_API_KEY="+f.APIKey)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %w: %s", f.Command, err, firstLine(out))
		}
		return nil
	}, func(attempt int, err error) {
		log.Warn("terrain acquisition attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
}

// ExecEphemerisFetcher acquires ephemeris files by invoking the ISCE
// orbit download tool:
//
//	<tool> --start YYYYMMDD --end YYYYMMDD --dir <dir>
//
// The tool is located via the explicit Path override, then $PATH, then
// well-known install locations. If the directory already holds two or
// more ephemeris files the fetch is skipped.
type ExecEphemerisFetcher struct {
	// Path pins the tool to an explicit location. Empty enables
	// discovery.
	Path string

	Log *zap.Logger
}

func (f *ExecEphemerisFetcher) FetchEphemeris(ctx context.Context, startDate, endDate, outDir string) error {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create ephemeris dir: %w", err)
	}

	// Ephemeris files cover wide date windows, so an already-populated
	// directory usually means a previous run fetched what we need.
	if n := CountEphemeris(outDir); n >= 2 {
		log.Info("ephemeris directory already populated, skipping fetch", zap.Int("count", n))
		return nil
	}

	tool, err := f.Locate()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, tool, "--start", startDate, "--end", endDate, "--dir", outDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", tool, err, firstLine(out))
	}
	return nil
}

// Locate resolves the acquisition tool: the pinned path when set,
// otherwise PATH lookup, otherwise well-known install locations.
func (f *ExecEphemerisFetcher) Locate() (string, error) {
	if f.Path != "" {
		if _, err := os.Stat(f.Path); err == nil {
			return f.Path, nil
		}
		return "", fmt.Errorf("%w: configured path %s does not exist", ErrNoEphemerisTool, f.Path)
	}

	for _, name := range ephemerisToolNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, candidate := range ephemerisToolCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNoEphemerisTool
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// firstLine trims combined output down to its first line for error
// messages; external tools tend to be chatty.
func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
