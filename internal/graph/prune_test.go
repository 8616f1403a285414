package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainStep wires a step consuming in and producing out.
func chainStep(t *testing.T, g *Graph, name string, in *Resource, out string) (*Step, *Resource) {
	t.Helper()
	s := g.NewToolStep(testTool(name))
	if in != nil {
		require.NoError(t, g.Attach(s.NewEdge(Input, true, ""), in))
	}
	rc := g.GetOrCreate(out)
	require.NoError(t, g.Attach(s.NewEdge(Output, true, ""), rc))
	return s, rc
}

func TestPruneUnused(t *testing.T) {
	t.Run("a dead chain is removed over several passes", func(t *testing.T) {
		g := New("/ws")
		src := g.AddSource("a.y")
		_, c := chainStep(t, g, "yacc", src, "a.c")
		_, o := chainStep(t, g, "cc", c, "a.o")
		_, _ = chainStep(t, g, "strip", o, "a.stripped")

		live, exe := chainStep(t, g, "ld", g.AddSource("main.o"), "app")
		g.AddTarget(exe)

		removed := g.PruneUnused(context.Background())

		require.Len(t, removed, 3)
		assert.Equal(t, []*Step{live}, g.ToolSteps())
		require.NoError(t, g.Validate())
	})

	t.Run("every remaining step has a live consumer", func(t *testing.T) {
		g := New("/ws")
		a := g.AddSource("a.c")
		b := g.AddSource("b.c")
		_, ao := chainStep(t, g, "cc", a, "a.o")
		_, bo := chainStep(t, g, "cc", b, "b.o")
		link := g.NewToolStep(testTool("ld"))
		require.NoError(t, g.Attach(link.NewEdge(Input, true, ""), ao))
		exe := g.GetOrCreate("app")
		require.NoError(t, g.Attach(link.NewEdge(Output, true, ""), exe))
		g.AddTarget(exe)
		_, _ = chainStep(t, g, "lint", bo, "b.lint")

		g.PruneUnused(context.Background())

		for _, s := range g.ToolSteps() {
			assert.True(t, hasConsumer(s), "step %s has no consumer", s)
		}
		assert.Len(t, g.ToolSteps(), 2)
		assert.Empty(t, g.PruneUnused(context.Background()), "a converged graph prunes nothing")
	})

	t.Run("a dirty custom step forces the source to rebuild", func(t *testing.T) {
		g := New("/ws")
		s, _ := chainStep(t, g, "gen", g.AddSource("spec.txt"), "notes.txt")
		s.custom = true
		s.MarkRebuild()

		g.PruneUnused(context.Background())

		assert.True(t, g.Source().NeedsRebuild())
	})

	t.Run("a clean custom step is removed quietly", func(t *testing.T) {
		g := New("/ws")
		s, _ := chainStep(t, g, "gen", g.AddSource("spec.txt"), "notes.txt")
		s.custom = true

		g.PruneUnused(context.Background())

		assert.False(t, g.Source().NeedsRebuild())
	})
}

func TestLinkResources(t *testing.T) {
	g := New("/ws")
	used := g.AddSource("a.c")
	g.AddSource("README.md")
	orphan := g.GetOrCreate("include/a.h")
	g.GetOrCreate("stray.tmp")

	s := g.NewToolStep(testTool("cc"))
	in := s.NewEdge(Input, true, "")
	require.NoError(t, g.Attach(in, used))
	require.NoError(t, g.Attach(s.NewEdge(Input, false, "header"), orphan))
	exe := g.GetOrCreate("a.o")
	require.NoError(t, g.Attach(s.NewEdge(Output, true, ""), exe))
	g.AddTarget(exe)

	g.linkResources(context.Background())

	_, ok := g.Resource("README.md")
	assert.False(t, ok, "an unconsumed raw file is dropped")
	_, ok = g.Resource("stray.tmp")
	assert.False(t, ok)
	assert.Same(t, g.Source(), orphan.ProducerStep(), "a consumed orphan is owned by the source")
	require.NoError(t, g.Validate())
}
