// Package sandbox materializes the isolated per-pair working directory
// the external processor runs in.
//
// Every input the processor needs (both scenes, the terrain artifact
// and its sidecars, every ephemeris file, and the generated step
// configuration) is staged into the sandbox as a same-directory link or
// file, because the processor resolves all inputs relative to its
// current directory. A sandbox is exclusively owned by one unit of work
// and its contents are fully disposable.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
)

// cacheDirName is the processor's intermediate-state cache inside a run
// directory. Stale entries risk incorrect reuse across runs.
const cacheDirName = "pickle"

// Error is a fatal per-unit staging failure. The owning unit reports
// Failure; sibling units are unaffected.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sandbox: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RunSandbox is a fully staged working directory for one pair.
type RunSandbox struct {
	// Dir is the sandbox directory.
	Dir string

	// LinkedFiles are the staged links, for diagnostics.
	LinkedFiles []string

	// ConfigFile is the generated step-configuration file.
	ConfigFile string
}

// Config configures the builder.
type Config struct {
	// RunsDir is the root under which sandboxes are created.
	RunsDir string

	// RawDir holds the raw scene inputs.
	RawDir string

	// Step overrides the generated step configuration. The zero value
	// uses DefaultStepConfig.
	Step *StepConfig
}

// Builder materializes sandboxes. Safe for concurrent use: each Build
// call touches only its own run directory.
type Builder struct {
	cfg Config
	log *zap.Logger
}

// NewBuilder creates a sandbox builder.
func NewBuilder(cfg Config, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{cfg: cfg, log: log}
}

// DirName returns the deterministic sandbox directory name for a pair:
// run_<refDate>_<secDate>, falling back to the leading characters of
// each scene identifier when no date is extractable.
func DirName(p pairs.Pair) string {
	refDate, refOK := pairs.ExtractDate(p.Reference)
	secDate, secOK := pairs.ExtractDate(p.Secondary)
	if refOK && secOK {
		return fmt.Sprintf("run_%s_%s", refDate, secDate)
	}
	return fmt.Sprintf("run_%s_%s", head(p.Reference, 10), head(p.Secondary, 10))
}

// Build stages a sandbox for the pair. Directory creation is idempotent;
// an existing directory is reused after its processor cache is cleared.
func (b *Builder) Build(p pairs.Pair, shared *resources.Shared) (*RunSandbox, error) {
	dir := filepath.Join(b.cfg.RunsDir, DirName(p))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "create", Path: dir, Err: err}
	}

	sb := &RunSandbox{Dir: dir}
	log := b.log.With(zap.String("run_dir", filepath.Base(dir)))

	// Ephemeris pool: link whatever exists. Thin coverage was already
	// warned about at provisioning time.
	for _, src := range resources.ListEphemeris(shared.EphemerisDir) {
		if err := b.stage(sb, src); err != nil {
			return nil, err
		}
	}

	// Terrain raster plus sidecars. Absent pieces are skipped with a
	// warning; the processor reports the gap itself when it matters.
	for _, src := range append([]string{shared.TerrainPath}, shared.TerrainSidecars...) {
		if _, err := os.Stat(src); err != nil {
			log.Warn("terrain file missing, not staged", zap.String("path", src))
			continue
		}
		if err := b.stage(sb, src); err != nil {
			return nil, err
		}
	}

	// Both scenes are required.
	for _, scene := range []string{p.Reference, p.Secondary} {
		if err := b.stage(sb, filepath.Join(b.cfg.RawDir, scene)); err != nil {
			return nil, err
		}
	}

	step := DefaultStepConfig()
	if b.cfg.Step != nil {
		step = *b.cfg.Step
	}
	step.TerrainBase = filepath.Base(shared.TerrainPath)
	step.Reference = p.Reference
	step.Secondary = p.Secondary

	configPath := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte(step.Render()), 0644); err != nil {
		return nil, &Error{Op: "write config", Path: configPath, Err: err}
	}
	sb.ConfigFile = configPath

	b.ClearCaches(sb)

	log.Debug("sandbox staged",
		zap.Int("linked_files", len(sb.LinkedFiles)),
		zap.String("config", ConfigFileName))
	return sb, nil
}

// stage links src into the sandbox under its base name.
func (b *Builder) stage(sb *RunSandbox, src string) error {
	dst := filepath.Join(sb.Dir, filepath.Base(src))
	if err := AtomicLink(src, dst); err != nil {
		return &Error{Op: "link", Path: src, Err: err}
	}
	sb.LinkedFiles = append(sb.LinkedFiles, dst)
	return nil
}

// ClearCaches removes processor cache artifacts left by a prior run in
// this directory. Best-effort: a failure is logged and swallowed, since
// a stale cache only risks incorrect reuse, not corruption.
func (b *Builder) ClearCaches(sb *RunSandbox) {
	cache := filepath.Join(sb.Dir, cacheDirName)
	if err := os.RemoveAll(cache); err != nil {
		b.log.Warn("could not clear processor cache", zap.String("path", cache), zap.Error(err))
	}
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
