package graph

import (
	"context"
	"fmt"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// TopologicalOrder returns the steps ordered so that every producer comes
// before its consumers; ties keep creation order. A cycle is reported as a
// ConsistencyError.
func (g *Graph) TopologicalOrder() ([]*Step, error) {
	indegree := make(map[*Step]int, len(g.steps))
	for _, s := range g.steps {
		for _, p := range s.Producers() {
			if p != s {
				indegree[s]++
			}
		}
	}

	var ready []*Step
	for _, s := range g.steps {
		if indegree[s] == 0 {
			ready = append(ready, s)
		}
	}

	order := make([]*Step, 0, len(g.steps))
	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		order = append(order, s)
		for _, c := range s.Consumers() {
			if c == s {
				continue
			}
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}

	if len(order) != len(g.steps) {
		for _, s := range g.steps {
			if indegree[s] > 0 {
				return nil, &ConsistencyError{Kind: Cycle, Detail: fmt.Sprintf("step %s is part of a dependency cycle", s)}
			}
		}
	}
	for _, s := range g.steps {
		for _, p := range s.Producers() {
			if p == s {
				return nil, &ConsistencyError{Kind: Cycle, Detail: fmt.Sprintf("step %s consumes its own output", s)}
			}
		}
	}
	return order, nil
}

// Propagate marks steps and resources dirty or removed in a single
// producer-before-consumer pass:
//   - a step is removed when explicitly marked, or when every resource of its
//     primary input edges is removed;
//   - otherwise it needs a rebuild when explicitly marked, or when any input
//     resource needs a rebuild or is removed;
//   - a removed step removes its outputs, a dirty step dirties its outputs.
//
// Once the pass is done, a dirty sink forces the source step dirty so that a
// pre-build hook reruns whenever anything downstream changed.
func (g *Graph) Propagate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}

	for _, s := range order {
		removed := s.removed
		if !removed {
			primary := s.PrimaryInputResources()
			if len(primary) > 0 {
				removed = true
				for _, rc := range primary {
					if !rc.removed {
						removed = false
						break
					}
				}
			}
		}

		rebuild := s.needsRebuild
		if !removed && !rebuild {
			for _, rc := range s.InputResources() {
				if rc.needsRebuild || rc.removed {
					logger.Debug("Input is dirty.", "step", s.String(), "resource", rc.location,
						"needs_rebuild", rc.needsRebuild, "removed", rc.removed)
					rebuild = true
					break
				}
			}
		}

		switch {
		case removed:
			logger.Debug("Step removed.", "step", s.String())
			s.removed = true
			s.needsRebuild = false
			for _, rc := range s.OutputResources() {
				rc.removed = true
				rc.needsRebuild = false
			}
		case rebuild:
			s.needsRebuild = true
			for _, rc := range s.OutputResources() {
				rc.needsRebuild = true
			}
		}
	}

	if g.sink.needsRebuild && !g.source.needsRebuild {
		logger.Debug("Sink needs rebuild, forcing source rebuild.")
		g.source.needsRebuild = true
	}
	return nil
}
