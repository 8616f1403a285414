package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot(t *testing.T) {
	g := fullBuild(t, "a.c", "b.c")

	snap := g.Snapshot()
	assert.Equal(t, []string{"/ws/a.c", "/ws/b.c", "/ws/build/a.o", "/ws/build/app", "/ws/build/b.o"}, snap.Paths())
	for _, p := range snap.Paths() {
		assert.True(t, snap[p].NeedsRebuild, "%s before building", p)
	}

	markAllBuilt(g)
	snap = g.Snapshot()
	for _, p := range snap.Paths() {
		assert.Equal(t, State{}, snap[p], "%s after building", p)
	}
}

func TestChangeSetEmpty(t *testing.T) {
	var nilSet *ChangeSet
	assert.True(t, nilSet.Empty())
	assert.True(t, (&ChangeSet{}).Empty())
	assert.False(t, (&ChangeSet{Removed: []string{"a"}}).Empty())
}
