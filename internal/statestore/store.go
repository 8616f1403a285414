package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridbuild/internal/graph"
)

// Store loads and saves rebuild snapshots.
type Store interface {
	// Load returns the last saved snapshot, or an empty one if nothing was
	// saved yet.
	Load(ctx context.Context) (graph.Snapshot, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap graph.Snapshot) error
	Close() error
}

// Kind names a store backend.
type Kind string

const (
	KindBadger Kind = "badger"
	KindFile   Kind = "file"
)

// StateDirName is the directory under the build directory holding the state.
const StateDirName = ".gridbuild"

// Open opens the store of the given kind under buildDir.
func Open(ctx context.Context, kind Kind, buildDir string) (Store, error) {
	dir := filepath.Join(buildDir, StateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	switch kind {
	case KindBadger, "":
		return OpenBadger(ctx, BadgerConfig{Path: filepath.Join(dir, "state.db")})
	case KindFile:
		return NewFile(filepath.Join(dir, "state.yaml")), nil
	default:
		return nil, fmt.Errorf("unknown state store %q", kind)
	}
}
