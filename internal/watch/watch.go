// Package watch turns file system notifications under a workspace into
// debounced change sets, one per quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
)

// DefaultDebounce is the quiet period closing a batch of events.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives one change set per batch. Returning an error stops Run.
type Handler func(ctx context.Context, changes *graph.ChangeSet) error

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	// Exclude lists doublestar globs of workspace-relative paths to ignore.
	Exclude []string
}

type change int

const (
	added change = iota + 1
	changed
	removed
)

// Watcher watches every directory of a workspace.
type Watcher struct {
	root    string
	opts    Options
	fsw     *fsnotify.Watcher
	pending map[string]change
}

// New starts watching root recursively.
func New(ctx context.Context, root string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{root: root, opts: opts, fsw: fsw, pending: make(map[string]change)}
	if err := w.addRecursive(ctx, root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fsw.Close() }

// WatchList returns the directories being watched.
func (w *Watcher) WatchList() []string {
	l := w.fsw.WatchList()
	sort.Strings(l)
	return l
}

func (w *Watcher) addRecursive(ctx context.Context, dir string) error {
	logger := ctxlog.FromContext(ctx)
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("Skipping unreadable path.", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) ignored(p string) bool {
	rel, ok := w.rel(p)
	if !ok {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".git" || seg == ".gridbuild" {
			return true
		}
	}
	for _, pat := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		if strings.HasSuffix(pat, "/**") && strings.TrimSuffix(pat, "/**") == rel {
			return true
		}
	}
	return false
}

// Run delivers change sets to h until ctx is done or h fails. It returns nil
// on cancellation.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	logger := ctxlog.FromContext(ctx)
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.record(ctx, ev) {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("Watcher overflowed, some changes may be missed.")
				continue
			}
			logger.Warn("Watcher error.", "error", err)

		case <-timer.C:
			cs := w.flush()
			if cs.Empty() {
				continue
			}
			logger.Info("👀 Changes detected.", "added", len(cs.Added), "changed", len(cs.Changed), "removed", len(cs.Removed))
			if err := h(ctx, cs); err != nil {
				return err
			}
		}
	}
}

// record folds one event into the pending batch. It reports whether the
// event was relevant.
func (w *Watcher) record(ctx context.Context, ev fsnotify.Event) bool {
	if w.ignored(ev.Name) {
		return false
	}
	rel, _ := w.rel(ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if err := w.addRecursive(ctx, ev.Name); err != nil {
				ctxlog.FromContext(ctx).Warn("Could not watch new directory.", "path", ev.Name, "error", err)
			}
			return false
		}
		if w.pending[rel] == removed {
			w.pending[rel] = changed
		} else if w.pending[rel] == 0 {
			w.pending[rel] = added
		}
	case ev.Has(fsnotify.Write):
		if w.pending[rel] == 0 {
			w.pending[rel] = changed
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.pending[rel] == added {
			delete(w.pending, rel)
		} else {
			w.pending[rel] = removed
		}
	default:
		return false
	}
	return true
}

func (w *Watcher) flush() *graph.ChangeSet {
	cs := &graph.ChangeSet{}
	for p, c := range w.pending {
		switch c {
		case added:
			cs.Added = append(cs.Added, p)
		case changed:
			cs.Changed = append(cs.Changed, p)
		case removed:
			cs.Removed = append(cs.Removed, p)
		}
	}
	sort.Strings(cs.Added)
	sort.Strings(cs.Changed)
	sort.Strings(cs.Removed)
	w.pending = make(map[string]change)
	return cs
}
