// Package atomicio provides crash-safe file publication primitives.
//
// All writes follow the temp-file-then-rename pattern so a crash mid-write
// never leaves a partially written artifact under its final name.
package atomicio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SaveToFile writes content produced by write to path atomically.
// The temp file is created in the same directory so the final rename
// stays on one filesystem.
func SaveToFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicio: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("atomicio: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("atomicio: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("atomicio: close %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("atomicio: rename %s: %w", path, err)
	}

	syncDir(dir)
	return nil
}

// PublishDir atomically publishes the fully staged directory staging as dir.
// It fails if dir already exists; the staging directory is consumed on
// success. A crash before the rename leaves only the staging directory,
// which is invisible to readers of dir.
func PublishDir(staging, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("atomicio: publish target %s already exists", dir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("atomicio: stat %s: %w", dir, err)
	}

	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("atomicio: publish %s: %w", dir, err)
	}

	syncDir(filepath.Dir(dir))
	return nil
}

// syncDir fsyncs a directory so renames survive a crash.
// Best-effort: some filesystems do not support directory fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
