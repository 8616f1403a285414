package graph

import "sort"

// State is the persisted rebuild state of one resource.
type State struct {
	NeedsRebuild bool `yaml:"needs_rebuild"`
	Removed      bool `yaml:"removed"`
}

// Snapshot maps a resource's canonical location to its rebuild state. It is
// the only state carried from one build invocation to the next.
type Snapshot map[string]State

// Paths returns the locations of the snapshot in sorted order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ChangeSet lists the workspace paths added, changed or removed since the
// previous build. Paths may be absolute or workspace-relative.
type ChangeSet struct {
	Added   []string
	Changed []string
	Removed []string
}

// Empty reports whether the change set carries no path at all.
func (c *ChangeSet) Empty() bool {
	return c == nil || len(c.Added)+len(c.Changed)+len(c.Removed) == 0
}

// Snapshot captures the rebuild state for the next invocation. Removed
// resources are kept as tombstones for one invocation, so the next build does
// not report them as removed again. A source file is dirty while any step
// consuming it has not been rebuilt; a generated file stays dirty until its
// producer succeeds.
func (g *Graph) Snapshot() Snapshot {
	snap := make(Snapshot, len(g.resources))
	for loc, rc := range g.resources {
		if rc.removed {
			snap[loc] = State{Removed: true}
			continue
		}
		dirty := rc.needsRebuild
		if rc.ProducerStep() == g.source {
			dirty = false
			for _, c := range rc.ConsumerSteps() {
				if c.kind == ToolStep && c.needsRebuild && !c.removed {
					dirty = true
					break
				}
			}
		}
		snap[loc] = State{NeedsRebuild: dirty}
	}
	return snap
}
