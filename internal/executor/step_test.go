//go:build unix

package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/procpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tool string

func (t tool) Name() string { return string(t) }

type recordingRefresher struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRefresher) Refresh(_ context.Context, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, paths...)
	return nil
}

// newStep creates a dirty step producing out/<name> in dir.
func newStep(t *testing.T, g *graph.Graph, name string, cmds ...string) *graph.Step {
	t.Helper()
	s := g.NewToolStep(tool(name))
	require.NoError(t, g.Attach(s.NewEdge(graph.Output, true, ""), g.GetOrCreate(filepath.Join("out", name))))
	s.SetCommands(cmds)
	s.MarkRebuild()
	return s
}

// drive polls the pool until the executor is done.
func drive(t *testing.T, ctx context.Context, p *procpool.Pool, x *StepExecutor) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !x.Done() {
		require.True(t, time.Now().Before(deadline), "step did not finish")
		if h := x.Handle(); h != nil {
			if s := p.State(h); s == procpool.Done || s == procpool.Cancelled {
				_ = x.Advance(ctx, p)
				continue
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStepExecutorRunsCommandsInSequence(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	s := newStep(t, g, "a.txt", "echo one > out/a.txt", "echo two >> out/a.txt")
	ref := &recordingRefresher{}
	pool := procpool.New(1)
	ctx := context.Background()

	x := New(s, &Options{Dir: dir, Refresher: ref})
	require.NoError(t, x.Start(ctx, pool))
	drive(t, ctx, pool, x)

	assert.Equal(t, StatusOK, x.Status())
	assert.NoError(t, x.Err())
	assert.False(t, s.NeedsRebuild(), "a successful step is marked built")
	data, err := os.ReadFile(filepath.Join(dir, "out", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
	assert.Equal(t, []string{filepath.Join(dir, "out", "a.txt")}, ref.paths)
	assert.Len(t, x.Results(), 2)
	assert.Equal(t, 1, pool.Free(), "the slot is released after the step")
}

func TestStepExecutorBuildErrorRemovesOutputs(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	s := newStep(t, g, "b.txt", "echo partial > out/b.txt", "echo broken; exit 4", "echo never > out/never")
	pool := procpool.New(1)
	ctx := context.Background()

	x := New(s, &Options{Dir: dir})
	require.NoError(t, x.Start(ctx, pool))
	drive(t, ctx, pool, x)

	assert.Equal(t, StatusBuildError, x.Status())
	var be *BuildError
	require.ErrorAs(t, x.Err(), &be)
	assert.Equal(t, 4, be.ExitCode)
	assert.Contains(t, be.Output, "broken")
	assert.True(t, s.NeedsRebuild())
	assert.NoFileExists(t, filepath.Join(dir, "out", "b.txt"), "partial outputs are deleted")
	assert.NoFileExists(t, filepath.Join(dir, "out", "never"))
	assert.Len(t, x.Results(), 2)
}

func TestStepExecutorLaunchError(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	s := newStep(t, g, "c.txt", "/no/such/tool --flag")
	pool := procpool.New(1)

	x := New(s, &Options{Dir: dir})
	err := x.Start(context.Background(), pool)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.True(t, x.Done())
	assert.Equal(t, StatusLaunchError, x.Status())
	assert.DirExists(t, filepath.Join(dir, "out"), "output directories are created before launch")
}

func TestStepExecutorCancelled(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	s := newStep(t, g, "d.txt", "echo x > out/d.txt; sleep 30")
	pool := procpool.New(1)
	ctx := context.Background()

	x := New(s, &Options{Dir: dir})
	require.NoError(t, x.Start(ctx, pool))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "out", "d.txt"))
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Terminate(x.Handle()))
	drive(t, ctx, pool, x)

	assert.Equal(t, StatusCancelled, x.Status())
	assert.ErrorIs(t, x.Err(), ErrCancelled)
	assert.NoFileExists(t, filepath.Join(dir, "out", "d.txt"))
}

func TestStepExecutorWithoutCommands(t *testing.T) {
	g := graph.New(t.TempDir())
	x := New(g.Sink(), &Options{})

	require.NoError(t, x.Start(context.Background(), procpool.New(1)))
	assert.True(t, x.Done())
	assert.Equal(t, StatusOK, x.Status())
}

func TestStepExecutorStopLaunchesNothingMore(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	s := newStep(t, g, "a.txt", "true", "touch out/late")
	pool := procpool.New(1)
	ctx := context.Background()

	x := New(s, &Options{Dir: dir})
	require.NoError(t, x.Start(ctx, pool))
	require.Eventually(t, func() bool { return pool.State(x.Handle()) == procpool.Done }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, x.Stop(ctx, pool))

	assert.True(t, x.Done())
	assert.Equal(t, StatusCancelled, x.Status())
	assert.Len(t, x.Results(), 1)
	assert.True(t, s.NeedsRebuild())
	assert.NoFileExists(t, filepath.Join(dir, "out", "late"))
}

func TestSourceStepKeepsWorkspaceFiles(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cmd    string
		status Status
	}{
		{"failed pre-build", "false", StatusBuildError},
		{"successful pre-build", "true", StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "main.c")
			require.NoError(t, os.WriteFile(src, []byte("int main;"), 0o644))
			g := graph.New(dir)
			g.AddSource("main.c")
			g.Source().SetCommands([]string{tc.cmd})
			g.Source().MarkRebuild()
			ref := &recordingRefresher{}
			pool := procpool.New(1)
			ctx := context.Background()

			x := New(g.Source(), &Options{Dir: dir, Refresher: ref})
			require.NoError(t, x.Start(ctx, pool))
			drive(t, ctx, pool, x)

			assert.Equal(t, tc.status, x.Status())
			assert.FileExists(t, src)
			assert.Empty(t, ref.paths, "sources are not refreshed as outputs")
			assert.Equal(t, tc.status != StatusOK, g.Source().NeedsRebuild())
		})
	}
}

func TestCleanStepRemovesGeneratedFiles(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	var files []string
	for _, name := range []string{"a.o", "b.o", "c d.o"} {
		newStep(t, g, name, "true")
		p := filepath.Join(dir, "out", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		files = append(files, p)
	}
	pool := procpool.New(1)
	ctx := context.Background()

	x := New(g.CleanStep(), &Options{Dir: dir, CleanCommand: "rm -f", MaxCleanLength: 16})
	require.Greater(t, len(x.Commands()), 1, "a small max length splits the clean")
	require.NoError(t, x.Start(ctx, pool))
	drive(t, ctx, pool, x)

	require.Equal(t, StatusOK, x.Status(), "%v", x.Err())
	for _, f := range files {
		assert.NoFileExists(t, f)
	}
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(existing, nil, 0o644))

	n, err := RemoveFiles(context.Background(), []string{existing, filepath.Join(dir, "missing")})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, existing)
}
