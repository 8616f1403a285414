package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tool string

func (t tool) Name() string { return string(t) }

// link adds a dirty step consuming ins and producing out/<name>.
func link(t *testing.T, g *graph.Graph, name string, cmd string, ins ...*graph.Resource) (*graph.Step, *graph.Resource) {
	t.Helper()
	s := g.NewToolStep(tool(name))
	if len(ins) > 0 {
		e := s.NewEdge(graph.Input, true, "")
		for _, in := range ins {
			require.NoError(t, g.Attach(e, in))
		}
	}
	out := g.GetOrCreate(filepath.Join("out", name))
	require.NoError(t, g.Attach(s.NewEdge(graph.Output, true, ""), out))
	if cmd != "" {
		s.SetCommands([]string{cmd})
	}
	s.MarkRebuild()
	return s, out
}

func levelsOf(p *Plan) map[string]int {
	out := make(map[string]int)
	for _, s := range p.Steps() {
		l, _ := p.Level(s)
		out[s.Name()] = l
	}
	return out
}

func TestLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("levels follow the longest producer chain", func(t *testing.T) {
		g := graph.New(t.TempDir())
		a, ra := link(t, g, "a", "", g.AddSource("a.c"))
		_, rb := link(t, g, "b", "", g.AddSource("b.c"))
		_, rc := link(t, g, "c", "", ra)
		_, rd := link(t, g, "d", "", rb, rc)
		g.AddTarget(rd)

		p, err := Level(ctx, g, LevelOptions{})
		require.NoError(t, err)

		assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 2, "d": 3}, levelsOf(p))
		assert.Equal(t, 3, p.MaxLevel())
		assert.Same(t, a, p.Steps()[0], "ties are broken by step id")
	})

	t.Run("clean steps are transparent", func(t *testing.T) {
		g := graph.New(t.TempDir())
		a, ra := link(t, g, "a", "", g.AddSource("a.c"))
		_, rb := link(t, g, "b", "", ra)
		g.AddTarget(rb)
		a.MarkBuilt()

		p, err := Level(ctx, g, LevelOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"b": 1}, levelsOf(p))

		p, err = Level(ctx, g, LevelOptions{Full: true})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 1, "b": 2}, levelsOf(p))
	})

	t.Run("only filter restricts the plan", func(t *testing.T) {
		g := graph.New(t.TempDir())
		_, ra := link(t, g, "a", "", g.AddSource("a.c"))
		_, rb := link(t, g, "b", "", ra)
		g.AddTarget(rb)

		p, err := Level(ctx, g, LevelOptions{Only: func(s *graph.Step) bool { return s.Name() == "b" }})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"b": 1}, levelsOf(p))
	})

	t.Run("an unselected step passes its upstream level on", func(t *testing.T) {
		g := graph.New(t.TempDir())
		_, ra := link(t, g, "a", "", g.AddSource("a.c"))
		_, rb := link(t, g, "b", "", ra)
		_, rc := link(t, g, "c", "", rb)
		g.AddTarget(rc)

		p, err := Level(ctx, g, LevelOptions{Only: func(s *graph.Step) bool { return s.Name() != "b" }})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 1, "c": 2}, levelsOf(p))
	})

	t.Run("steps the sink cannot reach are leveled too", func(t *testing.T) {
		g := graph.New(t.TempDir())
		link(t, g, "orphan", "", g.AddSource("a.c"))

		p, err := Level(ctx, g, LevelOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"orphan": 1}, levelsOf(p))
	})

	t.Run("nothing dirty yields an empty plan", func(t *testing.T) {
		g := graph.New(t.TempDir())
		a, ra := link(t, g, "a", "", g.AddSource("a.c"))
		g.AddTarget(ra)
		a.MarkBuilt()

		p, err := Level(ctx, g, LevelOptions{})
		require.NoError(t, err)
		assert.Zero(t, p.Len())
		assert.Zero(t, p.MaxLevel())
	})

	t.Run("a cycle is a consistency error", func(t *testing.T) {
		g := graph.New(t.TempDir())
		x := g.GetOrCreate("x")
		y := g.GetOrCreate("y")
		s1 := g.NewToolStep(tool("one"))
		s2 := g.NewToolStep(tool("two"))
		require.NoError(t, g.Attach(s1.NewEdge(graph.Input, true, ""), x))
		require.NoError(t, g.Attach(s1.NewEdge(graph.Output, true, ""), y))
		require.NoError(t, g.Attach(s2.NewEdge(graph.Input, true, ""), y))
		require.NoError(t, g.Attach(s2.NewEdge(graph.Output, true, ""), x))
		s1.MarkRebuild()
		s2.MarkRebuild()

		_, err := Level(ctx, g, LevelOptions{})
		assert.True(t, graph.IsConsistencyError(err))
	})
}

func TestPreBuildPlan(t *testing.T) {
	g := graph.New(t.TempDir())
	assert.Zero(t, PreBuildPlan(g).Len())

	g.Source().SetCommands([]string{"echo pre"})
	g.Source().MarkRebuild()
	p := PreBuildPlan(g)
	require.Equal(t, 1, p.Len())
	assert.Same(t, g.Source(), p.Steps()[0])
}
