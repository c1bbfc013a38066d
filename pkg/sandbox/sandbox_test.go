package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
)

const (
	refScene = "S1A_IW_SLC__1SDV_20230203T034221_20230203T034248_047106_05A6A1_5C9D.SAFE"
	secScene = "S1A_IW_SLC__1SDV_20230215T034220_20230215T034247_047281_05AC91_1A2B.SAFE"
)

func TestAtomicLink(t *testing.T) {
	t.Run("creates relative link", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src.dat")
		dst := filepath.Join(root, "runs", "src.dat")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

		require.NoError(t, AtomicLink(src, dst))

		target, err := os.Readlink(dst)
		require.NoError(t, err)
		assert.False(t, filepath.IsAbs(target))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("idempotent", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src.dat")
		dst := filepath.Join(root, "dst.dat")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

		require.NoError(t, AtomicLink(src, dst))
		require.NoError(t, AtomicLink(src, dst))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("replaces stale regular file", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src.dat")
		dst := filepath.Join(root, "dst.dat")
		require.NoError(t, os.WriteFile(src, []byte("fresh"), 0o644))
		require.NoError(t, os.WriteFile(dst, []byte("stale"), 0o644))

		require.NoError(t, AtomicLink(src, dst))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(data))
	})

	t.Run("replaces broken link", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src.dat")
		dst := filepath.Join(root, "dst.dat")
		require.NoError(t, os.WriteFile(src, []byte("fresh"), 0o644))
		require.NoError(t, os.Symlink(filepath.Join(root, "gone"), dst))

		require.NoError(t, AtomicLink(src, dst))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(data))
	})

	t.Run("missing source leaves destination untouched", func(t *testing.T) {
		root := t.TempDir()
		dst := filepath.Join(root, "dst.dat")
		require.NoError(t, os.WriteFile(dst, []byte("keep"), 0o644))

		err := AtomicLink(filepath.Join(root, "absent"), dst)
		require.ErrorIs(t, err, ErrSourceMissing)

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "keep", string(data))
	})
}

func TestDirName(t *testing.T) {
	t.Run("dated", func(t *testing.T) {
		name := DirName(pairs.Pair{Reference: refScene, Secondary: secScene})
		assert.Equal(t, "run_20230203_20230215", name)
	})

	t.Run("fallback to identifier heads", func(t *testing.T) {
		name := DirName(pairs.Pair{Reference: "scene_alpha_long_name", Secondary: "sb"})
		assert.Equal(t, "run_scene_alph_sb", name)
	})
}

func testShared(t *testing.T) (*resources.Shared, Config) {
	t.Helper()
	root := t.TempDir()

	demDir := filepath.Join(root, "dem")
	orbitDir := filepath.Join(root, "orbit_data")
	rawDir := filepath.Join(root, "raw")
	runsDir := filepath.Join(root, "runs")
	for _, d := range []string{demDir, orbitDir, rawDir, runsDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	terrain := filepath.Join(demDir, "dem_standard.wgs84")
	for _, p := range []string{terrain, terrain + ".xml", terrain + ".vrt"} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	for _, name := range []string{"orbit_a.EOF", "orbit_b.EOF"} {
		require.NoError(t, os.WriteFile(filepath.Join(orbitDir, name), []byte("x"), 0o644))
	}
	for _, scene := range []string{refScene, secScene} {
		require.NoError(t, os.WriteFile(filepath.Join(rawDir, scene), []byte("x"), 0o644))
	}

	shared := &resources.Shared{
		TerrainPath:     terrain,
		TerrainSidecars: []string{terrain + ".xml", terrain + ".vrt"},
		EphemerisDir:    orbitDir,
	}
	return shared, Config{RunsDir: runsDir, RawDir: rawDir}
}

func TestBuild(t *testing.T) {
	shared, cfg := testShared(t)
	b := NewBuilder(cfg, nil)
	p := pairs.Pair{Reference: refScene, Secondary: secScene}

	sb, err := b.Build(p, shared)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.RunsDir, "run_20230203_20230215"), sb.Dir)
	// 2 ephemeris + terrain + 2 sidecars + 2 scenes
	assert.Len(t, sb.LinkedFiles, 7)
	for _, link := range sb.LinkedFiles {
		fi, err := os.Lstat(link)
		require.NoError(t, err)
		assert.NotZero(t, fi.Mode()&os.ModeSymlink, "staged file %s must be a link", link)
	}

	data, err := os.ReadFile(sb.ConfigFile)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `<property name="sensor name">SENTINEL1</property>`)
	assert.Contains(t, content, `<property name="swaths">[1,2,3]</property>`)
	assert.Contains(t, content, `<property name="do unwrap">True</property>`)
	assert.Contains(t, content, `<property name="unwrapper name">snaphu_mcf</property>`)
	assert.Contains(t, content, `<property name="demFilename">dem_standard.wgs84</property>`)
	assert.Contains(t, content, `<property name="output directory">master</property>`)
	assert.Contains(t, content, `<property name="output directory">slave</property>`)
	assert.Contains(t, content, `<property name="safe">`+refScene+`</property>`)
	assert.NotContains(t, content, shared.TerrainPath, "terrain must be referenced by base name only")
}

func TestBuildIdempotentAndClearsCache(t *testing.T) {
	shared, cfg := testShared(t)
	b := NewBuilder(cfg, nil)
	p := pairs.Pair{Reference: refScene, Secondary: secScene}

	sb, err := b.Build(p, shared)
	require.NoError(t, err)

	cache := filepath.Join(sb.Dir, "pickle")
	require.NoError(t, os.MkdirAll(cache, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cache, "state"), []byte("stale"), 0o644))

	again, err := b.Build(p, shared)
	require.NoError(t, err)
	assert.Equal(t, sb.Dir, again.Dir)
	assert.NoDirExists(t, cache)
}

func TestBuildMissingSceneFails(t *testing.T) {
	shared, cfg := testShared(t)
	b := NewBuilder(cfg, nil)
	p := pairs.Pair{Reference: "absent.SAFE", Secondary: secScene}

	_, err := b.Build(p, shared)
	var sbErr *Error
	require.ErrorAs(t, err, &sbErr)
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestBuildSkipsAbsentTerrain(t *testing.T) {
	shared, cfg := testShared(t)
	require.NoError(t, os.Remove(shared.TerrainSidecars[1])) // drop the .vrt

	sb, err := NewBuilder(cfg, nil).Build(pairs.Pair{Reference: refScene, Secondary: secScene}, shared)
	require.NoError(t, err)
	assert.Len(t, sb.LinkedFiles, 6)
}

func TestStepConfigRender(t *testing.T) {
	c := StepConfig{
		Swaths:      []int{2},
		Unwrap:      false,
		Unwrapper:   "icu",
		TerrainBase: "dem.wgs84",
		Reference:   "ref.SAFE",
		Secondary:   "sec.SAFE",
	}
	out := c.Render()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<property name="swaths">[2]</property>`)
	assert.Contains(t, out, `<property name="do unwrap">False</property>`)
	assert.Contains(t, out, `<property name="unwrapper name">icu</property>`)
}
