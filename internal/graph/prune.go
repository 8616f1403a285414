package graph

import (
	"context"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// PruneUnused removes, until a full pass removes nothing, every tool step
// whose output resources have no consumer. Removing a step detaches its input
// edges, which may leave the steps that fed it unused in turn; the next pass
// catches them. It returns the removed steps in removal order.
//
// An unused custom step that still needed a rebuild forces the source step to
// rebuild, so the pre-build hook notices the change.
func (g *Graph) PruneUnused(ctx context.Context) []*Step {
	logger := ctxlog.FromContext(ctx)
	var removed []*Step

	for pass := 1; ; pass++ {
		found := false
		for _, s := range g.Steps() {
			if s.kind != ToolStep || hasConsumer(s) {
				continue
			}
			logger.Debug("Unused step found.", "step", s.String(), "pass", pass)
			if s.needsRebuild && s.custom {
				logger.Debug("Unused custom step needed rebuild, forcing source rebuild.", "step", s.String())
				g.source.needsRebuild = true
			}
			g.RemoveStep(s)
			removed = append(removed, s)
			found = true
		}
		if !found {
			break
		}
	}
	return removed
}

func hasConsumer(s *Step) bool {
	for _, rc := range s.OutputResources() {
		if len(rc.consumers) > 0 {
			return true
		}
	}
	return false
}

// linkResources settles resources left behind by pruning: a consumed resource
// without a producer is handed to the source step, and a source-owned resource
// nobody consumes is dropped from the graph.
func (g *Graph) linkResources(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, rc := range g.Resources() {
		switch {
		case rc.producer == nil && len(rc.consumers) == 0:
			g.dropResource(rc)
		case rc.producer == nil:
			_ = g.Attach(g.sourceOut, rc)
		case rc.producer.step == g.source && len(rc.consumers) == 0:
			logger.Debug("Dropping unconsumed source resource.", "resource", rc.location)
			g.dropResource(rc)
		}
	}
}
