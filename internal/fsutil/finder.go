// Package fsutil provides the workspace file system helpers: configuration
// discovery, source enumeration and output bookkeeping.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// FindConfigFiles resolves configuration arguments into a flat list of files
// with the given extension. Each argument is a file, a directory searched
// recursively, or a doublestar pattern. Missing paths are skipped. Files keep
// the order of their argument, sorted within a directory or pattern, and
// appear once.
func FindConfigFiles(paths []string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(found []string) {
		sort.Strings(found)
		for _, p := range found {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	for _, p := range paths {
		if strings.ContainsAny(p, "*?[{") {
			matches, err := doublestar.Glob(p)
			if err != nil {
				return nil, fmt.Errorf("bad config pattern %q: %w", p, err)
			}
			add(withExtension(matches, extension))
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", p, err)
		}
		if !info.IsDir() {
			add(withExtension([]string{p}, extension))
			continue
		}
		found, err := FindFilesByExtension(p, extension)
		if err != nil {
			return nil, err
		}
		add(found)
	}
	return out, nil
}

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension, skipping version control directories.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && alwaysExcluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func withExtension(paths []string, extension string) []string {
	var out []string
	for _, p := range paths {
		if strings.HasSuffix(p, extension) {
			out = append(out, p)
		}
	}
	return out
}
