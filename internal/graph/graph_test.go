package graph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTool string

func (t testTool) Name() string { return string(t) }

func TestGetOrCreate(t *testing.T) {
	g := New("/ws")

	a := g.GetOrCreate("src/a.c")
	b := g.GetOrCreate("/ws/src/./a.c")
	c := g.GetOrCreate("/ws/lib/../src/a.c")

	assert.Same(t, a, b)
	assert.Same(t, a, c)
	assert.Equal(t, "/ws/src/a.c", a.Location())
	assert.Equal(t, "src/a.c", a.RelPath())
	assert.Len(t, g.Resources(), 1)

	outside := g.GetOrCreate("/usr/include/stdio.h")
	assert.Equal(t, "", outside.RelPath())
}

func TestAttach(t *testing.T) {
	t.Run("claiming a raw file reassigns it from the source", func(t *testing.T) {
		g := New("/ws")
		rc := g.AddSource("gen/a.c")
		require.Same(t, g.Source(), rc.ProducerStep())

		s := g.NewToolStep(testTool("gen"))
		out := s.NewEdge(Output, true, "")
		require.NoError(t, g.Attach(out, rc))

		assert.Same(t, s, rc.ProducerStep())
		assert.Empty(t, g.Source().OutputResources())
		assert.Equal(t, []*Edge{out}, s.OutputEdges())
		require.NoError(t, g.Validate())
	})

	t.Run("a second real producer is a consistency error", func(t *testing.T) {
		g := New("/ws")
		rc := g.GetOrCreate("out/a.o")
		s1 := g.NewToolStep(testTool("cc"))
		s2 := g.NewToolStep(testTool("cc"))
		require.NoError(t, g.Attach(s1.NewEdge(Output, true, ""), rc))

		err := g.Attach(s2.NewEdge(Output, true, ""), rc)

		require.Error(t, err)
		var ce *ConsistencyError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, DuplicateProducer, ce.Kind)
		assert.Equal(t, "/ws/out/a.o", ce.Resource)
		assert.True(t, IsConsistencyError(err))
		assert.Same(t, s1, rc.ProducerStep(), "the graph must be left as it was")
		assert.Empty(t, s2.OutputEdges())
	})

	t.Run("the source never steals from a real step", func(t *testing.T) {
		g := New("/ws")
		rc := g.GetOrCreate("out/a.o")
		s := g.NewToolStep(testTool("cc"))
		require.NoError(t, g.Attach(s.NewEdge(Output, true, ""), rc))

		g.AddSource("out/a.o")

		assert.Same(t, s, rc.ProducerStep())
	})

	t.Run("attaching to a removed step fails", func(t *testing.T) {
		g := New("/ws")
		s := g.NewToolStep(testTool("cc"))
		in := s.NewEdge(Input, true, "")
		g.RemoveStep(s)

		err := g.Attach(in, g.GetOrCreate("a.c"))

		var ce *ConsistencyError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, Detached, ce.Kind)
	})

	t.Run("attach is idempotent", func(t *testing.T) {
		g := New("/ws")
		rc := g.AddSource("a.c")
		s := g.NewToolStep(testTool("cc"))
		in := s.NewEdge(Input, true, "")
		require.NoError(t, g.Attach(in, rc))
		require.NoError(t, g.Attach(in, rc))

		assert.Len(t, in.Resources(), 1)
		assert.Len(t, rc.Consumers(), 1)
	})
}

func TestDetach(t *testing.T) {
	g := New("/ws")
	a := g.AddSource("a.c")
	b := g.AddSource("b.c")
	s := g.NewToolStep(testTool("ld"))
	in := s.NewEdge(Input, true, "")
	require.NoError(t, g.Attach(in, a))
	require.NoError(t, g.Attach(in, b))

	g.Detach(in, a)
	assert.Equal(t, []*Resource{b}, in.Resources())
	assert.Empty(t, a.Consumers())
	assert.Len(t, s.InputEdges(), 1)

	g.Detach(in, b)
	assert.Empty(t, s.InputEdges(), "an empty edge leaves its step")

	require.NoError(t, g.Attach(in, a))
	assert.Len(t, s.InputEdges(), 1, "a refilled edge is listed again")
}

func TestRemoveStep(t *testing.T) {
	g := New("/ws")
	src := g.AddSource("a.c")
	s := g.NewToolStep(testTool("cc"))
	require.NoError(t, g.Attach(s.NewEdge(Input, true, ""), src))
	obj := g.GetOrCreate("a.o")
	require.NoError(t, g.Attach(s.NewEdge(Output, true, ""), obj))

	fed := g.RemoveStep(s)

	assert.Equal(t, []*Resource{src}, fed)
	assert.Nil(t, obj.Producer())
	assert.Empty(t, src.Consumers())
	assert.NotContains(t, g.Steps(), s)
	assert.Nil(t, g.RemoveStep(s), "removing twice is a no-op")
}

func TestCleanStep(t *testing.T) {
	g := New("/ws")
	g.AddSource("a.c")
	s := g.NewToolStep(testTool("cc"))
	require.NoError(t, g.Attach(s.NewEdge(Output, true, ""), g.GetOrCreate("a.o")))
	require.NoError(t, g.Attach(s.NewEdge(Output, false, "dep"), g.GetOrCreate("a.d")))

	clean := g.CleanStep()

	assert.Equal(t, CleanStep, clean.Kind())
	assert.Same(t, clean, g.CleanStep())
	var locs []string
	for _, rc := range clean.InputResources() {
		locs = append(locs, rc.Location())
	}
	assert.ElementsMatch(t, []string{"/ws/a.o", "/ws/a.d"}, locs)
}

// TestSingleProducerUnderRandomMutation drives random attach/detach/remove
// sequences and checks that no resource ever has two producers.
func TestSingleProducerUnderRandomMutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := New("/ws")

	paths := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var edges []*Edge
	for i := 0; i < 6; i++ {
		s := g.NewToolStep(testTool("t"))
		edges = append(edges, s.NewEdge(Output, true, ""), s.NewEdge(Input, true, ""))
	}
	for _, p := range paths[:4] {
		g.AddSource(p)
	}

	for i := 0; i < 2000; i++ {
		rc := g.GetOrCreate(paths[rng.Intn(len(paths))])
		e := edges[rng.Intn(len(edges))]
		switch rng.Intn(4) {
		case 0, 1:
			err := g.Attach(e, rc)
			if err != nil {
				require.True(t, IsConsistencyError(err))
			}
		case 2:
			g.Detach(e, rc)
		case 3:
			g.AddSource(rc.Location())
		}
		require.NoError(t, g.Validate(), "iteration %d", i)
	}
}
