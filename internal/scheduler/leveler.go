package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
)

// Plan is the ordered list of steps to dispatch.
type Plan struct {
	steps  []*graph.Step
	levels map[*graph.Step]int
	max    int
}

func newPlan(levels map[*graph.Step]int) *Plan {
	p := &Plan{levels: levels}
	for s, l := range levels {
		p.steps = append(p.steps, s)
		if l > p.max {
			p.max = l
		}
	}
	sort.Slice(p.steps, func(i, j int) bool {
		li, lj := levels[p.steps[i]], levels[p.steps[j]]
		if li != lj {
			return li < lj
		}
		return p.steps[i].ID() < p.steps[j].ID()
	})
	return p
}

// Steps returns the planned steps ordered by level, then by id.
func (p *Plan) Steps() []*graph.Step { return append([]*graph.Step(nil), p.steps...) }

// Len returns the number of planned steps.
func (p *Plan) Len() int { return len(p.steps) }

// Level returns the level of a planned step.
func (p *Plan) Level(s *graph.Step) (int, bool) {
	l, ok := p.levels[s]
	return l, ok
}

// Contains reports whether a step is planned.
func (p *Plan) Contains(s *graph.Step) bool {
	_, ok := p.levels[s]
	return ok
}

// MaxLevel returns the highest level in the plan.
func (p *Plan) MaxLevel() int { return p.max }

// LevelOptions select the eligible steps.
type LevelOptions struct {
	// Full makes every live step eligible, dirty or not.
	Full bool
	// Only restricts the plan to steps it accepts. Nil accepts all.
	Only func(*graph.Step) bool
}

// Level assigns every eligible step its dependency level: one more than the
// highest level among the eligible steps upstream of it. Inputs produced by
// the source count as level zero; an ineligible producer passes on the level
// of the eligible steps behind it, so selecting steps with Only keeps their
// relative order. The walk
// starts at the sink and follows producer links backwards; steps the sink
// cannot reach are walked afterwards. Meeting a step that is still on the
// walk's stack is a cycle and fails with a graph.ConsistencyError.
func Level(ctx context.Context, g *graph.Graph, opts LevelOptions) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	eligible := func(s *graph.Step) bool {
		switch s.Kind() {
		case graph.ToolStep:
		case graph.SinkStep:
			if len(s.Commands()) == 0 {
				return false
			}
		default:
			return false
		}
		if s.IsRemoved() || !(opts.Full || s.NeedsRebuild()) {
			return false
		}
		return opts.Only == nil || opts.Only(s)
	}

	const (
		unvisited = iota
		onStack
		visited
	)
	state := make(map[*graph.Step]int)
	reach := make(map[*graph.Step]int)
	levels := make(map[*graph.Step]int)

	var visit func(s *graph.Step) (int, error)
	visit = func(s *graph.Step) (int, error) {
		switch state[s] {
		case visited:
			return reach[s], nil
		case onStack:
			return 0, &graph.ConsistencyError{Kind: graph.Cycle, Detail: fmt.Sprintf("step %s depends on itself", s)}
		}
		state[s] = onStack

		highest := 0
		for _, p := range s.Producers() {
			if p.Kind() == graph.SourceStep {
				continue
			}
			l, err := visit(p)
			if err != nil {
				return 0, err
			}
			if l > highest {
				highest = l
			}
		}

		r := highest
		if eligible(s) {
			r = highest + 1
			levels[s] = r
		}
		state[s] = visited
		reach[s] = r
		return r, nil
	}

	if _, err := visit(g.Sink()); err != nil {
		return nil, err
	}
	for _, s := range g.Steps() {
		if state[s] == unvisited && s.Kind() != graph.SourceStep {
			if _, err := visit(s); err != nil {
				return nil, err
			}
		}
	}

	plan := newPlan(levels)
	logger.Debug("Steps leveled.", "eligible", plan.Len(), "max_level", plan.MaxLevel())
	return plan, nil
}

// PreBuildPlan returns the plan running the source step's pre-build command,
// or an empty plan when there is nothing to run.
func PreBuildPlan(g *graph.Graph) *Plan {
	src := g.Source()
	levels := make(map[*graph.Step]int)
	if src.NeedsRebuild() && len(src.Commands()) > 0 {
		levels[src] = 1
	}
	return newPlan(levels)
}

// NewPlan levels an explicit set of steps that do not depend on each other,
// such as a clean step.
func NewPlan(steps ...*graph.Step) *Plan {
	levels := make(map[*graph.Step]int, len(steps))
	for _, s := range steps {
		levels[s] = 1
	}
	return newPlan(levels)
}
