package graph

import (
	"fmt"
	"sort"
)

// ID returns the identifier of the step, unique within its graph.
func (s *Step) ID() int { return s.id }

// Kind returns the kind of the step.
func (s *Step) Kind() StepKind { return s.kind }

// Tool returns the tool descriptor, or nil for synthetic steps.
func (s *Step) Tool() Tool { return s.tool }

// Group returns the batching group of the step, or "".
func (s *Step) Group() string { return s.group }

// IsTarget reports whether the step produces final artifacts for the sink.
func (s *Step) IsTarget() bool { return s.target }

// IsCustom reports whether the step is a user-defined custom step.
func (s *Step) IsCustom() bool { return s.custom }

// NeedsRebuild reports whether the step must run.
func (s *Step) NeedsRebuild() bool { return s.needsRebuild }

// IsRemoved reports whether every reason for the step to exist is gone.
func (s *Step) IsRemoved() bool { return s.removed }

// IsVirtual reports whether the step is synthetic.
func (s *Step) IsVirtual() bool { return s.kind != ToolStep }

// Commands returns the resolved command lines of the step.
func (s *Step) Commands() []string {
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// SetCommands replaces the resolved command lines of the step.
func (s *Step) SetCommands(cmds []string) {
	s.commands = append([]string(nil), cmds...)
}

// MarkRebuild flags the step as needing a rebuild.
func (s *Step) MarkRebuild() { s.needsRebuild = true }

// ClearRebuild clears the rebuild marker of the step only.
func (s *Step) ClearRebuild() { s.needsRebuild = false }

// MarkBuilt clears the rebuild markers of the step and of every resource it
// produced. It is called once all of the step's commands succeeded.
func (s *Step) MarkBuilt() {
	s.needsRebuild = false
	for _, rc := range s.OutputResources() {
		rc.needsRebuild = false
	}
}

// String returns a short human-readable name of the step.
func (s *Step) String() string {
	if s.tool != nil {
		return fmt.Sprintf("%s#%d", s.tool.Name(), s.id)
	}
	return fmt.Sprintf("%s#%d", s.kind, s.id)
}

// Name returns the tool name, or the kind for synthetic steps.
func (s *Step) Name() string {
	if s.tool != nil {
		return s.tool.Name()
	}
	return s.kind.String()
}

// InputEdges returns the ordered input edges.
func (s *Step) InputEdges() []*Edge { return append([]*Edge(nil), s.inputs...) }

// OutputEdges returns the ordered output edges.
func (s *Step) OutputEdges() []*Edge { return append([]*Edge(nil), s.outputs...) }

// Edges returns the input or output edges, optionally only the primary ones.
func (s *Step) Edges(dir Direction, primaryOnly bool) []*Edge {
	src := s.inputs
	if dir == Output {
		src = s.outputs
	}
	var out []*Edge
	for _, e := range src {
		if primaryOnly && !e.primary {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Edge returns the first edge with the given direction and role, if any.
func (s *Step) Edge(dir Direction, role string) (*Edge, bool) {
	for _, e := range s.Edges(dir, false) {
		if e.role == role {
			return e, true
		}
	}
	return nil, false
}

// NewEdge creates an empty edge on the step. It becomes visible through the
// step's edge lists once it holds a resource.
func (s *Step) NewEdge(dir Direction, primary bool, role string) *Edge {
	return &Edge{step: s, dir: dir, primary: primary, role: role}
}

// InputResources returns the distinct resources of every input edge.
func (s *Step) InputResources() []*Resource { return collect(s.inputs) }

// OutputResources returns the distinct resources of every output edge.
func (s *Step) OutputResources() []*Resource { return collect(s.outputs) }

// PrimaryInputResources returns the resources of the primary input edges.
func (s *Step) PrimaryInputResources() []*Resource {
	return collect(s.Edges(Input, true))
}

// Producers returns the distinct steps producing the step's inputs, ordered by id.
func (s *Step) Producers() []*Step {
	seen := make(map[*Step]struct{})
	var out []*Step
	for _, rc := range s.InputResources() {
		p := rc.ProducerStep()
		if p == nil {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Consumers returns the distinct steps consuming the step's outputs, ordered by id.
func (s *Step) Consumers() []*Step {
	seen := make(map[*Step]struct{})
	var out []*Step
	for _, rc := range s.OutputResources() {
		for _, c := range rc.ConsumerSteps() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func collect(edges []*Edge) []*Resource {
	seen := make(map[*Resource]struct{})
	var out []*Resource
	for _, e := range edges {
		for _, rc := range e.resources {
			if _, ok := seen[rc]; ok {
				continue
			}
			seen[rc] = struct{}{}
			out = append(out, rc)
		}
	}
	return out
}

func (s *Step) ensureEdge(e *Edge) {
	list := &s.inputs
	if e.dir == Output {
		list = &s.outputs
	}
	for _, x := range *list {
		if x == e {
			return
		}
	}
	*list = append(*list, e)
}

func (s *Step) removeEdge(e *Edge) {
	list := &s.inputs
	if e.dir == Output {
		list = &s.outputs
	}
	for i, x := range *list {
		if x == e {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// newStep registers a new step on the graph.
func (g *Graph) newStep(kind StepKind, tool Tool) *Step {
	g.nextID++
	s := &Step{id: g.nextID, kind: kind, tool: tool}
	g.steps = append(g.steps, s)
	return s
}

// NewToolStep creates a step invoking the given tool.
func (g *Graph) NewToolStep(tool Tool) *Step {
	return g.newStep(ToolStep, tool)
}

// RemoveStep detaches every edge of the step and drops it from the graph. It
// returns the resources the step consumed, whose producers may have become
// unused.
func (g *Graph) RemoveStep(s *Step) []*Resource {
	if s.detached {
		return nil
	}
	fed := s.InputResources()
	for _, e := range append(s.InputEdges(), s.OutputEdges()...) {
		for _, rc := range e.Resources() {
			g.Detach(e, rc)
		}
	}
	for i, x := range g.steps {
		if x == s {
			g.steps = append(g.steps[:i], g.steps[i+1:]...)
			break
		}
	}
	s.detached = true
	if s == g.clean {
		g.clean = nil
	}
	return fed
}
