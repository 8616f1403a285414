package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReadStamp returns the modification time of the stamp file, or false when
// there is none.
func ReadStamp(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// WriteStamp creates the stamp file if needed and sets its modification time.
func WriteStamp(path string, t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writing stamp: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("writing stamp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing stamp: %w", err)
	}
	return os.Chtimes(path, t, t)
}

// RemoveStamp deletes the stamp file. A missing stamp is not an error.
func RemoveStamp(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stamp: %w", err)
	}
	return nil
}

// ChangedSince returns the files under root, given relative to it, whose
// modification time is after t.
func ChangedSince(root string, files []string, t time.Time) []string {
	var out []string
	for _, f := range files {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			continue
		}
		if info.ModTime().After(t) {
			out = append(out, f)
		}
	}
	return out
}
