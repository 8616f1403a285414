// Package localsession provides a concrete implementation of the session.Session
// and session.SessionFactory interfaces for builds run on this machine.
package localsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/fsutil"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/procpool"
	"github.com/specialistvlad/gridbuild/internal/scheduler"
	"github.com/specialistvlad/gridbuild/internal/session"
	"github.com/specialistvlad/gridbuild/internal/statestore"
	"github.com/specialistvlad/gridbuild/internal/toolchain"
)

// stampName is the file under the state directory whose modification time
// marks the start of the last saved build.
const stampName = "stamp"

// SessionFactory implements session.SessionFactory for local runs.
type SessionFactory struct {
	// Workspace is the absolute workspace root.
	Workspace string
	// Env is the complete environment of every launched process.
	Env []string
	// Store holds the rebuild state across sessions.
	Store statestore.Store
	// Observer is notified of step events. Optional.
	Observer scheduler.Observer
	// Stream receives process output as it is produced. Optional.
	Stream io.Writer
}

// NewSession wires a session for one invocation.
func (f *SessionFactory) NewSession(ctx context.Context, cfg *config.Model) (session.Session, error) {
	if f.Store == nil {
		return nil, errors.New("local session: a state store is required")
	}
	id := uuid.NewString()
	ctx = ctxlog.With(ctx, "build_id", id)
	logger := ctxlog.FromContext(ctx)

	matcher, err := toolchain.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating tool chain: %w", err)
	}

	b := cfg.Build
	slots := b.Parallelism
	if slots == 0 {
		slots = scheduler.DefaultParallelism()
	}
	pool := procpool.New(slots)
	tracker := fsutil.NewTracker()
	execOpts := &executor.Options{
		Dir:            f.Workspace,
		Env:            f.Env,
		Stream:         f.Stream,
		CleanCommand:   b.CleanCommand,
		MaxCleanLength: b.MaxCleanCommandLength,
		Refresher:      tracker,
	}
	s := &Session{
		id:      id,
		logger:  logger,
		cfg:     cfg,
		factory: f,
		matcher: matcher,
		pool:    pool,
		tracker: tracker,
		dispatcher: scheduler.NewDispatcher(pool, execOpts, scheduler.Options{
			ResumeOnError: b.ResumeOnError,
			PollInterval:  b.PollInterval,
		}, f.Observer),
	}
	logger.Debug("Session created.", "workspace", f.Workspace, "slots", pool.Size())
	return s, nil
}

// Session implements session.Session for local runs.
type Session struct {
	id         string
	logger     *slog.Logger
	cfg        *config.Model
	factory    *SessionFactory
	matcher    *toolchain.Matcher
	pool       *procpool.Pool
	tracker    *fsutil.Tracker
	dispatcher *scheduler.Dispatcher
}

// ID returns the build id.
func (s *Session) ID() string { return s.id }

func (s *Session) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, s.logger)
}

func (s *Session) stampPath() string {
	return filepath.Join(s.cfg.BuildPath(s.factory.Workspace), statestore.StateDirName, stampName)
}

// enumerate lists the workspace files, never descending into the build
// directory.
func (s *Session) enumerate(ctx context.Context) ([]string, error) {
	exclude := append([]string{path.Clean(s.cfg.Build.BuildDir) + "/**"}, s.cfg.Build.Exclude...)
	return fsutil.Enumerate(ctx, s.factory.Workspace, exclude)
}

func (s *Session) construct(ctx context.Context, files []string, changes *graph.ChangeSet, snap graph.Snapshot) (*graph.Graph, error) {
	g, err := graph.Build(ctx, s.factory.Workspace, graph.BuildInput{
		Files:            files,
		Changes:          changes,
		Snapshot:         snap,
		Matcher:          s.matcher,
		Exists:           s.tracker.Exists,
		PreBuildCommand:  s.cfg.Build.PreBuildCommand,
		PostBuildCommand: s.cfg.Build.PostBuildCommand,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing build graph: %w", err)
	}
	return g, nil
}

// Build implements session.Session.
func (s *Session) Build(ctx context.Context, req session.Request) (*session.Report, error) {
	ctx = s.context(ctx)
	logger := s.logger
	start := time.Now()
	report := &session.Report{ID: s.id}
	defer func() { report.Elapsed = time.Since(start) }()

	files, err := s.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.factory.Store.Load(ctx)
	if err != nil {
		return nil, err
	}

	changes := req.Changes
	if changes == nil && !req.Full {
		if stamp, ok := fsutil.ReadStamp(s.stampPath()); ok && len(snap) > 0 {
			changes = &graph.ChangeSet{Changed: fsutil.ChangedSince(s.factory.Workspace, files, stamp)}
		}
	}
	if changes == nil {
		logger.Debug("No previous build state, rebuilding everything.")
	} else {
		logger.Debug("Change set.", "added", len(changes.Added), "changed", len(changes.Changed), "removed", len(changes.Removed))
	}

	g, err := s.construct(ctx, files, changes, snap)
	if err != nil {
		return nil, err
	}

	n, err := s.removeStale(ctx, g)
	report.StaleRemoved = n
	if err != nil {
		logger.Warn("Could not remove every stale output.", "error", err)
	}

	opts := scheduler.LevelOptions{Full: req.Full}
	if len(req.Only) > 0 {
		opts = scheduler.LevelOptions{Full: true, Only: consumesAny(g, req.Only)}
	}
	plan, err := scheduler.Level(ctx, g, opts)
	if err != nil {
		return nil, fmt.Errorf("leveling build graph: %w", err)
	}

	pre := scheduler.PreBuildPlan(g)
	if len(req.Only) > 0 {
		pre = scheduler.NewPlan()
	}
	if plan.Len() == 0 && pre.Len() == 0 {
		logger.Info("✨ Nothing to build.")
		report.Status = executor.StatusOK
		return report, s.save(ctx, g, start)
	}

	if pre.Len() > 0 {
		logger.Info("Running pre-build command.")
		report.PreBuild, report.Err = s.dispatcher.Run(ctx, pre)
		report.Status = report.PreBuild.Status
	}
	if report.Err == nil && plan.Len() > 0 {
		logger.Info("🚀 Dispatching steps.", "steps", plan.Len(), "levels", plan.MaxLevel(), "slots", s.pool.Size())
		report.Dispatch, report.Err = s.dispatcher.Run(ctx, plan)
		report.Status = report.Dispatch.Status
	}

	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.WithoutCancel(ctx)
	}
	if err := s.save(saveCtx, g, start); err != nil {
		return report, err
	}
	return report, nil
}

// save persists the snapshot and moves the stamp to the start of the build,
// so that edits made while it ran are seen by the next one.
func (s *Session) save(ctx context.Context, g *graph.Graph, start time.Time) error {
	if err := s.factory.Store.Save(ctx, g.Snapshot()); err != nil {
		return fmt.Errorf("saving build state: %w", err)
	}
	return fsutil.WriteStamp(s.stampPath(), start)
}

// removeStale deletes the files of generated resources that no longer have
// a live producer.
func (s *Session) removeStale(ctx context.Context, g *graph.Graph) (int, error) {
	var stale []string
	for _, rc := range g.Generated() {
		if rc.IsRemoved() {
			stale = append(stale, rc.Location())
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := executor.RemoveFiles(ctx, stale)
	if n > 0 {
		s.logger.Info("🧹 Removed stale outputs.", "count", n)
	}
	return n, err
}

// consumesAny selects the steps reading one of the given paths.
func consumesAny(g *graph.Graph, paths []string) func(*graph.Step) bool {
	want := make(map[*graph.Step]bool)
	for _, p := range paths {
		rc, ok := g.Resource(p)
		if !ok {
			continue
		}
		for _, c := range rc.ConsumerSteps() {
			want[c] = true
		}
	}
	return func(st *graph.Step) bool { return want[st] }
}

// Clean implements session.Session.
func (s *Session) Clean(ctx context.Context) (*session.Report, error) {
	ctx = s.context(ctx)
	start := time.Now()
	report := &session.Report{ID: s.id, Status: executor.StatusOK}
	defer func() { report.Elapsed = time.Since(start) }()

	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	clean := g.CleanStep()
	if len(clean.InputResources()) > 0 && s.cfg.Build.CleanCommand != "" {
		s.logger.Info("🧹 Cleaning generated files.", "count", len(clean.InputResources()))
		report.Dispatch, report.Err = s.dispatcher.Run(ctx, scheduler.NewPlan(clean))
		report.Status = report.Dispatch.Status
	}
	if report.Err != nil {
		return report, nil
	}

	if err := s.factory.Store.Save(ctx, graph.Snapshot{}); err != nil {
		return report, fmt.Errorf("clearing build state: %w", err)
	}
	if err := fsutil.RemoveStamp(s.stampPath()); err != nil {
		return report, err
	}
	return report, nil
}

// Graph implements session.Session. Every step of the returned graph is
// marked for rebuild.
func (s *Session) Graph(ctx context.Context) (*graph.Graph, error) {
	ctx = s.context(ctx)
	files, err := s.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return s.construct(ctx, files, nil, nil)
}

// Close terminates anything still running in the pool.
func (s *Session) Close(ctx context.Context) error {
	if n := s.pool.TerminateAll(s.context(ctx)); n > 0 {
		s.logger.Warn("Terminated processes left running at close.", "count", n)
	}
	s.logger.Debug("Session closed.")
	return nil
}
