package inmemorystore

import (
	"context"
	"maps"
	"sync"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/statestore"
)

// Store holds a copy of the last saved snapshot.
//
// Load and Save copy the map so that callers never share it with the store.
type Store struct {
	mu    sync.RWMutex
	snap  graph.Snapshot
	saves int
}

var _ statestore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{snap: graph.Snapshot{}}
}

// Load returns a copy of the stored snapshot.
func (s *Store) Load(ctx context.Context) (graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.snap), nil
}

// Save replaces the stored snapshot with a copy of snap.
func (s *Store) Save(ctx context.Context, snap graph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = maps.Clone(snap)
	if s.snap == nil {
		s.snap = graph.Snapshot{}
	}
	s.saves++
	ctxlog.FromContext(ctx).Debug("State saved.", "store", "memory", "entries", len(s.snap))
	return nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
