package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologicalOrder(t *testing.T) {
	g := New("/ws")
	s1, r1 := chainStep(t, g, "one", g.AddSource("in"), "r1")
	s2, r2 := chainStep(t, g, "two", r1, "r2")
	s3, r3 := chainStep(t, g, "three", r2, "r3")
	g.AddTarget(r3)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	pos := make(map[*Step]int)
	for i, s := range order {
		pos[s] = i
	}
	assert.Less(t, pos[g.Source()], pos[s1])
	assert.Less(t, pos[s1], pos[s2])
	assert.Less(t, pos[s2], pos[s3])
	assert.Less(t, pos[s3], pos[g.Sink()])
}

func TestTopologicalOrderCycle(t *testing.T) {
	g := New("/ws")
	a := g.GetOrCreate("a")
	b := g.GetOrCreate("b")
	s1 := g.NewToolStep(testTool("one"))
	s2 := g.NewToolStep(testTool("two"))
	require.NoError(t, g.Attach(s1.NewEdge(Input, true, ""), a))
	require.NoError(t, g.Attach(s1.NewEdge(Output, true, ""), b))
	require.NoError(t, g.Attach(s2.NewEdge(Input, true, ""), b))
	require.NoError(t, g.Attach(s2.NewEdge(Output, true, ""), a))

	_, err := g.TopologicalOrder()

	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Cycle, ce.Kind)
	assert.True(t, IsConsistencyError(g.Propagate(context.Background())), "propagation refuses a cyclic graph")
}

func TestPropagate(t *testing.T) {
	t.Run("a dirty input rebuilds the whole downstream chain", func(t *testing.T) {
		g := New("/ws")
		src := g.AddSource("a.c")
		s1, r1 := chainStep(t, g, "cc", src, "a.o")
		s2, r2 := chainStep(t, g, "ld", r1, "app")
		g.AddTarget(r2)
		other, _ := chainStep(t, g, "cc", g.AddSource("b.c"), "b.o")
		src.needsRebuild = true

		require.NoError(t, g.Propagate(context.Background()))

		assert.True(t, s1.NeedsRebuild())
		assert.True(t, s2.NeedsRebuild())
		assert.True(t, r1.NeedsRebuild())
		assert.True(t, r2.NeedsRebuild())
		assert.False(t, other.NeedsRebuild())
		assert.True(t, g.Sink().NeedsRebuild())
		assert.True(t, g.Source().NeedsRebuild(), "a dirty sink forces the source dirty")
	})

	t.Run("removing every primary input removes the step", func(t *testing.T) {
		g := New("/ws")
		src := g.AddSource("a.c")
		s1, r1 := chainStep(t, g, "cc", src, "a.o")
		hdr := g.AddSource("a.h")
		require.NoError(t, g.Attach(s1.NewEdge(Input, false, "header"), hdr))
		link := g.NewToolStep(testTool("ld"))
		in := link.NewEdge(Input, true, "")
		require.NoError(t, g.Attach(in, r1))
		require.NoError(t, g.Attach(in, g.AddSource("b.o")))
		exe := g.GetOrCreate("app")
		require.NoError(t, g.Attach(link.NewEdge(Output, true, ""), exe))
		g.AddTarget(exe)
		src.removed = true

		require.NoError(t, g.Propagate(context.Background()))

		assert.True(t, s1.IsRemoved())
		assert.False(t, s1.NeedsRebuild())
		assert.True(t, r1.IsRemoved())
		assert.False(t, r1.NeedsRebuild(), "removed supersedes needs-rebuild")
		assert.False(t, link.IsRemoved(), "one of two primary inputs is still alive")
		assert.True(t, link.NeedsRebuild(), "a removed input forces a rebuild")
		assert.True(t, exe.NeedsRebuild())
	})

	t.Run("an explicitly removed step removes its outputs", func(t *testing.T) {
		g := New("/ws")
		s, r := chainStep(t, g, "cc", g.AddSource("a.c"), "a.o")
		s.removed = true
		s.needsRebuild = true

		require.NoError(t, g.Propagate(context.Background()))

		assert.False(t, s.NeedsRebuild())
		assert.True(t, r.IsRemoved())
	})

	t.Run("a clean graph stays clean", func(t *testing.T) {
		g := New("/ws")
		_, r := chainStep(t, g, "cc", g.AddSource("a.c"), "a.o")
		g.AddTarget(r)

		require.NoError(t, g.Propagate(context.Background()))

		for _, s := range g.Steps() {
			assert.False(t, s.NeedsRebuild(), "step %s", s)
			assert.False(t, s.IsRemoved(), "step %s", s)
		}
	})
}
