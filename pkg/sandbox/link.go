package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSourceMissing indicates an atomic link was requested for a source
// file that does not exist.
var ErrSourceMissing = errors.New("link source does not exist")

// AtomicLink stages src into the sandbox as a relative symbolic link at
// dst. It fails immediately when src does not exist; anything already
// occupying dst, including a broken link, is removed first. On return
// dst is either a fresh valid reference to src or untouched alongside a
// reported failure, never a stale or partial link.
func AtomicLink(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}

	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("replace %s: %w", dst, err)
		}
	}

	// Relative targets keep the runs tree relocatable.
	rel, err := filepath.Rel(filepath.Dir(dst), src)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", src, err)
	}
	if err := os.Symlink(rel, dst); err != nil {
		return fmt.Errorf("link %s: %w", dst, err)
	}
	return nil
}
