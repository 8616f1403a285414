package statestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"gopkg.in/yaml.v3"
)

// File keeps the snapshot in a YAML document.
type File struct {
	path string
}

// NewFile returns a store backed by the file at path. The file is created on
// the first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the location of the document.
func (f *File) Path() string { return f.path }

// Load reads the document. A missing file is an empty snapshot.
func (f *File) Load(ctx context.Context) (graph.Snapshot, error) {
	r, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return graph.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	defer r.Close()

	snap, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("loading state from %s: %w", f.path, err)
	}
	ctxlog.FromContext(ctx).Debug("State loaded.", "store", "file", "path", f.path, "entries", len(snap))
	return snap, nil
}

// Save writes the document through a temporary file renamed into place.
func (f *File) Save(ctx context.Context, snap graph.Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("saving state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("State saved.", "store", "file", "path", f.path, "entries", len(snap))
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }

// Encode writes a snapshot as YAML, keyed by location in sorted order.
func Encode(w io.Writer, snap graph.Snapshot) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, loc := range snap.Paths() {
		var val yaml.Node
		if err := val.Encode(snap[loc]); err != nil {
			return err
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: loc}, &val)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (graph.Snapshot, error) {
	snap := graph.Snapshot{}
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return snap, nil
}
