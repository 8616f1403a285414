package fsutil

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// Tracker remembers the modification time of files it has looked at. It
// answers the existence probe of graph construction and re-reads outputs
// after a step produced them.
type Tracker struct {
	mu     sync.Mutex
	mtimes map[string]time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{mtimes: make(map[string]time.Time)}
}

// Exists reports whether path names an existing file, caching its
// modification time.
func (t *Tracker) Exists(path string) bool {
	info, err := os.Stat(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		delete(t.mtimes, path)
		return false
	}
	t.mtimes[path] = info.ModTime()
	return true
}

// ModTime returns the cached modification time of path.
func (t *Tracker) ModTime(path string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.mtimes[path]
	return m, ok
}

// Refresh re-reads the given paths. A path that does not exist is dropped
// from the cache and reported in the returned error, which lists every
// missing file.
func (t *Tracker) Refresh(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if !t.Exists(p) {
			errs = append(errs, &fs.PathError{Op: "refresh", Path: p, Err: fs.ErrNotExist})
		}
	}
	if len(errs) > 0 {
		ctxlog.FromContext(ctx).Debug("Some outputs were not produced.", "missing", len(errs))
	}
	return errors.Join(errs...)
}
