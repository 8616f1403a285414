package graph

import (
	"fmt"
	"sort"
)

// New creates an empty graph rooted at the given workspace directory. The
// synthetic source and sink steps are created immediately.
func New(root string) *Graph {
	g := &Graph{
		root:      root,
		resources: make(map[string]*Resource),
	}
	g.source = g.newStep(SourceStep, nil)
	g.sink = g.newStep(SinkStep, nil)
	g.sourceOut = g.source.NewEdge(Output, true, "")
	g.sinkIn = g.sink.NewEdge(Input, true, "")
	return g
}

// Root returns the workspace directory the graph is rooted at.
func (g *Graph) Root() string { return g.root }

// Source returns the synthetic step producing every raw file.
func (g *Graph) Source() *Step { return g.source }

// Sink returns the synthetic step consuming the final artifacts.
func (g *Graph) Sink() *Step { return g.sink }

// Steps returns the steps of the graph in creation order.
func (g *Graph) Steps() []*Step { return append([]*Step(nil), g.steps...) }

// ToolSteps returns the non-virtual steps in creation order.
func (g *Graph) ToolSteps() []*Step {
	var out []*Step
	for _, s := range g.steps {
		if s.kind == ToolStep {
			out = append(out, s)
		}
	}
	return out
}

// Resources returns every resource sorted by location.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, 0, len(g.resources))
	for _, rc := range g.resources {
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].location < out[j].location })
	return out
}

// AddSource registers a raw file as produced by the source step.
func (g *Graph) AddSource(path string) *Resource {
	rc := g.GetOrCreate(path)
	if rc.producer == nil {
		// The source never steals, so this cannot fail.
		_ = g.Attach(g.sourceOut, rc)
	}
	return rc
}

// AddTarget registers a resource as a final artifact consumed by the sink.
func (g *Graph) AddTarget(rc *Resource) {
	_ = g.Attach(g.sinkIn, rc)
}

// Generated returns the resources produced by real steps, sorted by location.
func (g *Graph) Generated() []*Resource {
	var out []*Resource
	for _, rc := range g.Resources() {
		if p := rc.ProducerStep(); p != nil && p.kind == ToolStep {
			out = append(out, rc)
		}
	}
	return out
}

// CleanStep returns the clean step, creating it on first use. Its input edge
// holds every generated resource currently in the graph.
func (g *Graph) CleanStep() *Step {
	if g.clean != nil {
		return g.clean
	}
	g.clean = g.newStep(CleanStep, nil)
	in := g.clean.NewEdge(Input, true, "")
	for _, rc := range g.Generated() {
		_ = g.Attach(in, rc)
	}
	return g.clean
}

// Validate checks the structural invariants of the graph: every resource has
// at most one producer edge, and every edge reference is mirrored on both
// sides.
func (g *Graph) Validate() error {
	producers := make(map[*Resource]int)
	live := make(map[*Step]struct{}, len(g.steps))
	for _, s := range g.steps {
		live[s] = struct{}{}
	}
	for _, s := range g.steps {
		for _, e := range s.outputs {
			for _, rc := range e.resources {
				producers[rc]++
				if rc.producer != e {
					return &ConsistencyError{Kind: DuplicateProducer, Resource: rc.location,
						Detail: fmt.Sprintf("output edge of %s is not the recorded producer", s)}
				}
			}
		}
		for _, e := range s.inputs {
			for _, rc := range e.resources {
				found := false
				for _, c := range rc.consumers {
					if c == e {
						found = true
						break
					}
				}
				if !found {
					return &ConsistencyError{Kind: Detached, Resource: rc.location,
						Detail: fmt.Sprintf("input edge of %s missing from consumers", s)}
				}
			}
		}
	}
	for loc, rc := range g.resources {
		if producers[rc] > 1 {
			return &ConsistencyError{Kind: DuplicateProducer, Resource: loc,
				Detail: fmt.Sprintf("%d producer edges", producers[rc])}
		}
		if rc.producer != nil {
			if _, ok := live[rc.producer.step]; !ok {
				return &ConsistencyError{Kind: Detached, Resource: loc, Detail: "producer step is not in the graph"}
			}
		}
		for _, c := range rc.consumers {
			if _, ok := live[c.step]; !ok {
				return &ConsistencyError{Kind: Detached, Resource: loc, Detail: "consumer step is not in the graph"}
			}
		}
	}
	return nil
}
