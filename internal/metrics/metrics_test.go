package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tool string

func (t tool) Name() string { return string(t) }

func TestCollectorObservesSteps(t *testing.T) {
	c := New()
	g := graph.New("/ws")
	s := g.NewToolStep(tool("cc"))

	c.StepStarted(s)
	c.SlotsInUse(3)
	c.StepFinished(s, executor.StatusOK, 250*time.Millisecond)
	c.StepStarted(s)
	c.StepFinished(s, executor.StatusBuildError, time.Second)
	c.BuildFinished(executor.StatusBuildError, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.StepsStarted.WithLabelValues("cc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StepsFinished.WithLabelValues("cc", executor.StatusOK.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StepsFinished.WithLabelValues("cc", executor.StatusBuildError.String())))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Slots))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Builds.WithLabelValues(executor.StatusBuildError.String())))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StepDuration))
}

func TestHandlerServesRegistry(t *testing.T) {
	c := New()
	c.SlotsInUse(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gridbuild_slots_in_use 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCollectorsAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.SlotsInUse(5)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Slots))
}
