package fsutil

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// alwaysExcluded are directory names never descended into.
var alwaysExcluded = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// Enumerate lists the regular files under root as slash-separated paths
// relative to root, sorted. A path matching one of the exclude globs is
// skipped; an excluded directory is not descended into. Patterns use
// doublestar syntax, so "build/**" excludes the whole build directory.
func Enumerate(ctx context.Context, root string, exclude []string) ([]string, error) {
	for _, p := range exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	excluded := func(rel string, dir bool) bool {
		for _, p := range exclude {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
			if dir {
				if ok, _ := doublestar.Match(p, rel+"/"); ok {
					return true
				}
				if strings.HasSuffix(p, "/**") && strings.TrimSuffix(p, "/**") == rel {
					return true
				}
			}
		}
		return false
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if alwaysExcluded[d.Name()] || excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(rel, false) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	sort.Strings(files)
	ctxlog.FromContext(ctx).Debug("Workspace enumerated.", "root", root, "files", len(files))
	return files, nil
}
