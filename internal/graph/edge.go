package graph

import "fmt"

// Step returns the step owning the edge.
func (e *Edge) Step() *Step { return e.step }

// Direction returns whether the edge is an input or an output of its step.
func (e *Edge) Direction() Direction { return e.dir }

// Primary reports whether the edge carries the principal data flow of its step.
func (e *Edge) Primary() bool { return e.primary }

// Role returns the identifier correlating the edge with a tool variable.
func (e *Edge) Role() string { return e.role }

// Resources returns the ordered resources of the edge.
func (e *Edge) Resources() []*Resource {
	out := make([]*Resource, len(e.resources))
	copy(out, e.resources)
	return out
}

func (e *Edge) contains(rc *Resource) bool {
	for _, r := range e.resources {
		if r == rc {
			return true
		}
	}
	return false
}

func (e *Edge) remove(rc *Resource) bool {
	for i, r := range e.resources {
		if r == rc {
			e.resources = append(e.resources[:i], e.resources[i+1:]...)
			return true
		}
	}
	return false
}

// Attach appends the resource to the edge. For output edges, a resource owned
// by the source step is reassigned atomically; a resource owned by another real
// step yields a DuplicateProducer ConsistencyError and leaves the graph as it
// was. Attaching a resource that already has a producer to the source step is a
// no-op: the source never steals from a real step.
func (g *Graph) Attach(e *Edge, rc *Resource) error {
	if e.step.detached {
		return &ConsistencyError{
			Kind:     Detached,
			Resource: rc.location,
			Detail:   fmt.Sprintf("attach to an edge of detached step %s", e.step),
		}
	}
	if e.contains(rc) {
		return nil
	}

	if e.dir == Input {
		e.resources = append(e.resources, rc)
		rc.consumers = append(rc.consumers, e)
		e.step.ensureEdge(e)
		return nil
	}

	if prev := rc.producer; prev != nil {
		switch {
		case e.step == g.source:
			return nil
		case prev.step == g.source:
			g.Detach(prev, rc)
		default:
			return &ConsistencyError{
				Kind:     DuplicateProducer,
				Resource: rc.location,
				Detail:   fmt.Sprintf("claimed by %s while produced by %s", e.step, prev.step),
			}
		}
	}
	e.resources = append(e.resources, rc)
	rc.producer = e
	e.step.ensureEdge(e)
	return nil
}

// Detach removes the resource from the edge. An edge left without resources
// is removed from its step.
func (g *Graph) Detach(e *Edge, rc *Resource) {
	if !e.remove(rc) {
		return
	}
	if e.dir == Input {
		rc.removeConsumer(e)
	} else if rc.producer == e {
		rc.producer = nil
	}
	if len(e.resources) == 0 {
		e.step.removeEdge(e)
	}
}
