package graph

import (
	"path/filepath"
	"strings"
)

// Location returns the canonical location of the resource.
func (r *Resource) Location() string { return r.location }

// RelPath returns the workspace-relative path, or "" when the resource lives
// outside the workspace.
func (r *Resource) RelPath() string { return r.relPath }

// NeedsRebuild reports whether the resource is dirty.
func (r *Resource) NeedsRebuild() bool { return r.needsRebuild }

// IsRemoved reports whether the resource no longer exists for this build.
func (r *Resource) IsRemoved() bool { return r.removed }

// Producer returns the edge producing the resource, or nil.
func (r *Resource) Producer() *Edge { return r.producer }

// ProducerStep returns the step producing the resource, or nil.
func (r *Resource) ProducerStep() *Step {
	if r.producer == nil {
		return nil
	}
	return r.producer.step
}

// Consumers returns the edges consuming the resource.
func (r *Resource) Consumers() []*Edge {
	out := make([]*Edge, len(r.consumers))
	copy(out, r.consumers)
	return out
}

// ConsumerSteps returns the distinct steps consuming the resource, in edge order.
func (r *Resource) ConsumerSteps() []*Step {
	seen := make(map[*Step]struct{}, len(r.consumers))
	var out []*Step
	for _, e := range r.consumers {
		if _, ok := seen[e.step]; ok {
			continue
		}
		seen[e.step] = struct{}{}
		out = append(out, e.step)
	}
	return out
}

func (r *Resource) removeConsumer(e *Edge) {
	for i, c := range r.consumers {
		if c == e {
			r.consumers = append(r.consumers[:i], r.consumers[i+1:]...)
			return
		}
	}
}

// Canonicalize turns a path into the canonical location used as the resource
// key: relative paths are resolved against root, and the result is cleaned.
func Canonicalize(root, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

func relativeTo(root, location string) string {
	if root == "" {
		return ""
	}
	rel, err := filepath.Rel(root, location)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Resource returns the resource at the given path, if the graph has one.
func (g *Graph) Resource(path string) (*Resource, bool) {
	rc, ok := g.resources[Canonicalize(g.root, path)]
	return rc, ok
}

// GetOrCreate returns the resource at the given path, creating it on first
// use. The same physical file is never represented twice.
func (g *Graph) GetOrCreate(path string) *Resource {
	loc := Canonicalize(g.root, path)
	if rc, ok := g.resources[loc]; ok {
		return rc
	}
	rc := &Resource{
		location: loc,
		relPath:  relativeTo(g.root, loc),
	}
	g.resources[loc] = rc
	return rc
}

// dropResource detaches the resource from every edge and forgets it.
func (g *Graph) dropResource(rc *Resource) {
	if rc.producer != nil {
		g.Detach(rc.producer, rc)
	}
	for _, e := range rc.Consumers() {
		g.Detach(e, rc)
	}
	delete(g.resources, rc.location)
}
