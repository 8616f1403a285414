package statestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() graph.Snapshot {
	return graph.Snapshot{
		"/ws/a.c":       {NeedsRebuild: true},
		"/ws/b.c":       {},
		"/ws/build/a.o": {NeedsRebuild: true},
		"/ws/gone.c":    {Removed: true},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]func(t *testing.T) Store{
		"badger": func(t *testing.T) Store {
			s, err := OpenBadger(ctx, BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
			require.NoError(t, err)
			return s
		},
		"badger in memory": func(t *testing.T) Store {
			s, err := OpenBadger(ctx, BadgerConfig{InMemory: true})
			require.NoError(t, err)
			return s
		},
		"file": func(t *testing.T) Store {
			return NewFile(filepath.Join(t.TempDir(), "state.yaml"))
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			snap, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, snap, "a fresh store is empty")

			require.NoError(t, s.Save(ctx, sampleSnapshot()))
			snap, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleSnapshot(), snap)

			next := graph.Snapshot{"/ws/b.c": {NeedsRebuild: true}}
			require.NoError(t, s.Save(ctx, next))
			snap, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, next, snap, "saving replaces the previous snapshot")
		})
	}
}

func TestBadgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s, err := OpenBadger(ctx, BadgerConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = OpenBadger(ctx, BadgerConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()
	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), snap)
}

func TestEncodeIsSortedYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, graph.Snapshot{
		"/ws/b": {},
		"/ws/a": {NeedsRebuild: true},
	}))

	assert.Equal(t, `/ws/a:
  needs_rebuild: true
  removed: false
/ws/b:
  needs_rebuild: false
  removed: false
`, buf.String())

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, back["/ws/a"].NeedsRebuild)
}

func TestFileLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o644))

	_, err := NewFile(path).Load(context.Background())
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, KindFile, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, StateDirName, "state.yaml"), s.(*File).Path())

	_, err = Open(ctx, "etcd", dir)
	assert.ErrorContains(t, err, "unknown state store")
}
