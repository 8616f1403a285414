// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file builds the graph from a file enumeration.
//
// Construction is a worklist: every resource that enters the graph (a raw file
// or a step output) is pushed onto a queue, and draining the queue asks the
// ToolMatcher which tool consumes it. Per-file tools get a step per resource
// whose outputs are pushed back onto the queue; batch tools collect every
// matching resource into one step whose outputs are resolved once the queue is
// empty, in tool order. Construction ends when the queue is empty and no batch
// step is left unresolved.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// Match is the ToolMatcher's answer for one resource.
type Match struct {
	Tool    Tool
	Role    string
	Primary bool
	// Batch makes one step collect every resource matched to the tool.
	Batch bool
	// Target makes the step's outputs final artifacts consumed by the sink.
	Target bool
	Custom bool
	// Order ranks batch tools; lower orders resolve their outputs first.
	Order int
}

// ToolMatcher maps resources to tools and resolves what a step produces and
// runs. It is supplied by the tool-chain configuration.
type ToolMatcher interface {
	// Match returns the tool consuming the resource, if any.
	Match(rc *Resource) (Match, bool)
	// Outputs returns the locations a step produces.
	Outputs(step *Step) ([]string, error)
	// Commands returns the resolved command lines of a step.
	Commands(step *Step) ([]string, error)
}

// BuildInput is everything Build needs to describe one invocation.
type BuildInput struct {
	// Files is the enumeration of raw workspace files.
	Files []string
	// Changes lists what changed since the previous build. A nil change set
	// requests a full build.
	Changes *ChangeSet
	// Snapshot is the rebuild state persisted by the previous build.
	Snapshot Snapshot
	Matcher  ToolMatcher
	// Exists reports whether a generated file is present on disk. Missing
	// outputs make their producer rebuild. Nil disables the probe.
	Exists func(path string) bool

	PreBuildCommand  string
	PostBuildCommand string
}

type pendingBatch struct {
	step  *Step
	order int
}

type builder struct {
	g         *Graph
	in        BuildInput
	queue     []*Resource
	seen      map[*Resource]struct{}
	batches   map[string]*Step
	batchIn   map[*Step]map[string]*Edge
	pending   []pendingBatch
	resolved  map[*Step]struct{}
	sawTarget bool
}

// Build constructs, prunes and propagates the graph of one build invocation.
func Build(ctx context.Context, root string, in BuildInput) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	if in.Matcher == nil {
		return nil, fmt.Errorf("graph build: a tool matcher is required")
	}

	b := &builder{
		g:        New(root),
		in:       in,
		seen:     make(map[*Resource]struct{}),
		batches:  make(map[string]*Step),
		batchIn:  make(map[*Step]map[string]*Edge),
		resolved: make(map[*Step]struct{}),
	}
	g := b.g

	for _, f := range in.Files {
		b.push(g.AddSource(f))
	}
	if err := b.drain(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Enumeration composed.", "files", len(in.Files), "steps", len(g.steps), "resources", len(g.resources))

	if err := b.seedRemoved(ctx); err != nil {
		return nil, err
	}

	if !b.sawTarget {
		for _, rc := range g.Generated() {
			if len(rc.consumers) == 0 {
				g.AddTarget(rc)
			}
		}
	}

	b.applyRebuildState(ctx)

	pruned := g.PruneUnused(ctx)
	g.linkResources(ctx)
	logger.Debug("Graph pruned.", "removed_steps", len(pruned), "steps", len(g.steps), "resources", len(g.resources))

	if err := g.Propagate(ctx); err != nil {
		return nil, err
	}
	if err := b.resolveCommands(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *builder) push(rc *Resource) {
	if _, ok := b.seen[rc]; ok {
		return
	}
	b.seen[rc] = struct{}{}
	b.queue = append(b.queue, rc)
}

func (b *builder) drain(ctx context.Context) error {
	for {
		for len(b.queue) > 0 {
			rc := b.queue[0]
			b.queue = b.queue[1:]
			if err := b.compose(ctx, rc); err != nil {
				return err
			}
		}
		s := b.nextBatch()
		if s == nil {
			return nil
		}
		if err := b.resolveOutputs(ctx, s); err != nil {
			return err
		}
	}
}

func (b *builder) compose(ctx context.Context, rc *Resource) error {
	m, ok := b.in.Matcher.Match(rc)
	if !ok || m.Tool == nil {
		return nil
	}
	if p := rc.ProducerStep(); p != nil && p.tool != nil && p.tool.Name() == m.Tool.Name() {
		return nil
	}
	g := b.g

	if m.Batch {
		name := m.Tool.Name()
		s, ok := b.batches[name]
		if !ok {
			s = g.NewToolStep(m.Tool)
			s.group = name
			s.target = m.Target
			s.custom = m.Custom
			b.batches[name] = s
			b.batchIn[s] = make(map[string]*Edge)
			b.pending = append(b.pending, pendingBatch{step: s, order: m.Order})
		}
		e, ok := b.batchIn[s][m.Role]
		if !ok {
			e = s.NewEdge(Input, m.Primary || m.Role == "", m.Role)
			b.batchIn[s][m.Role] = e
		}
		return g.Attach(e, rc)
	}

	s := g.NewToolStep(m.Tool)
	s.target = m.Target
	s.custom = m.Custom
	if err := g.Attach(s.NewEdge(Input, true, m.Role), rc); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Step created.", "step", s.String(), "input", rc.location)
	return b.resolveOutputs(ctx, s)
}

func (b *builder) nextBatch() *Step {
	sort.SliceStable(b.pending, func(i, j int) bool { return b.pending[i].order < b.pending[j].order })
	for _, p := range b.pending {
		if _, done := b.resolved[p.step]; !done {
			return p.step
		}
	}
	return nil
}

func (b *builder) resolveOutputs(ctx context.Context, s *Step) error {
	b.resolved[s] = struct{}{}
	paths, err := b.in.Matcher.Outputs(s)
	if err != nil {
		return fmt.Errorf("resolving outputs of %s: %w", s, err)
	}
	if len(paths) == 0 {
		return nil
	}
	g := b.g
	out := s.NewEdge(Output, true, "")
	for _, p := range paths {
		rc := g.GetOrCreate(p)
		if err := g.Attach(out, rc); err != nil {
			return err
		}
		if s.target {
			g.AddTarget(rc)
			b.sawTarget = true
		}
		b.push(rc)
	}
	ctxlog.FromContext(ctx).Debug("Step outputs resolved.", "step", s.String(), "outputs", len(paths))
	return nil
}

// seedRemoved brings back files that disappeared since the previous build, so
// that everything derived from them is marked removed. A path counts as gone
// when the change set says so, or when the snapshot knew it and nothing in the
// graph represents it anymore.
func (b *builder) seedRemoved(ctx context.Context) error {
	g := b.g
	var gone []string
	if b.in.Changes != nil {
		gone = append(gone, b.in.Changes.Removed...)
	}
	for _, p := range b.in.Snapshot.Paths() {
		if b.in.Snapshot[p].Removed {
			continue
		}
		if _, ok := g.Resource(p); !ok {
			gone = append(gone, p)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	for _, p := range gone {
		if rc, ok := g.Resource(p); ok {
			if prod := rc.ProducerStep(); prod != nil && prod.kind == ToolStep {
				// A deleted output is rebuilt, not removed.
				b.markDirty(rc)
				continue
			}
		}
		rc := g.AddSource(p)
		rc.removed = true
		b.push(rc)
	}
	ctxlog.FromContext(ctx).Debug("Removed files seeded.", "count", len(gone))
	return b.drain(ctx)
}

func (b *builder) markDirty(rc *Resource) {
	rc.needsRebuild = true
	if p := rc.ProducerStep(); p != nil && p.kind == ToolStep {
		p.needsRebuild = true
	}
}

// applyRebuildState turns the change set, the previous snapshot and the
// existence probe into explicit dirty markers. A nil change set marks the
// source step dirty, which rebuilds everything.
func (b *builder) applyRebuildState(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	g := b.g

	if b.in.Changes == nil {
		logger.Debug("No change set, requesting full build.")
		g.source.needsRebuild = true
	} else {
		for _, p := range append(append([]string(nil), b.in.Changes.Added...), b.in.Changes.Changed...) {
			if rc, ok := g.Resource(p); ok && !rc.removed {
				b.markDirty(rc)
			}
		}
		for _, rc := range g.sourceOut.resources {
			st, known := b.in.Snapshot[rc.location]
			if !rc.removed && (!known || st.Removed) {
				rc.needsRebuild = true
			}
		}
	}

	for _, p := range b.in.Snapshot.Paths() {
		if b.in.Snapshot[p].NeedsRebuild {
			if rc, ok := g.Resource(p); ok && !rc.removed {
				b.markDirty(rc)
			}
		}
	}

	if b.in.Exists != nil {
		for _, rc := range g.Generated() {
			if !rc.removed && !b.in.Exists(rc.location) {
				logger.Debug("Generated file missing.", "resource", rc.location)
				b.markDirty(rc)
			}
		}
	}
}

func (b *builder) resolveCommands() error {
	g := b.g
	for _, s := range g.steps {
		if s.kind != ToolStep || s.removed {
			continue
		}
		cmds, err := b.in.Matcher.Commands(s)
		if err != nil {
			return fmt.Errorf("resolving commands of %s: %w", s, err)
		}
		s.SetCommands(cmds)
	}
	if b.in.PreBuildCommand != "" {
		g.source.SetCommands([]string{b.in.PreBuildCommand})
	}
	if b.in.PostBuildCommand != "" {
		g.sink.SetCommands([]string{b.in.PostBuildCommand})
	}
	return nil
}
