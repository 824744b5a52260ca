// Package safefile provides atomic file writes: content lands in a temp file
// next to the target and is renamed into place, so readers never observe a
// partial write. The temp name carries a unique token because multiple
// processes may target the same path.
package safefile

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// WriteFile writes data to path atomically via temp-then-rename.
func WriteFile(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString()[:8])
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := fs.Rename(tmp, path); err != nil {
		// Best effort cleanup; the rename error is the one that matters.
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// WriteFileWithRetry attempts the atomic write, then falls back to one direct
// write on failure. Used for artifact emission where a direct write is still
// preferable to losing the file.
func WriteFileWithRetry(fs afero.Fs, path string, data []byte) error {
	if err := WriteFile(fs, path, data); err == nil {
		return nil
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("direct write retry failed: %w", err)
	}
	return nil
}
