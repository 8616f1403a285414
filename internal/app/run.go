package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/makefile"
	"github.com/specialistvlad/gridbuild/internal/session"
	"github.com/specialistvlad/gridbuild/internal/watch"
)

// BuildOptions select what Build dispatches.
type BuildOptions struct {
	Full bool
	Only []string
}

// Build runs one build invocation and prints its summary. The returned error
// carries the aggregate status: nil, executor.ErrCancelled, a
// *executor.LaunchError or a *executor.BuildError.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	return a.build(ctx, session.Request{Full: opts.Full, Only: opts.Only})
}

func (a *App) build(ctx context.Context, req session.Request) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	a.logger.Info("🔨 Build started.", "build_id", s.ID())
	report, err := s.Build(ctx, req)
	if err != nil {
		return fmt.Errorf("build %s: %w", s.ID(), err)
	}
	a.metrics.BuildFinished(report.Status, report.Elapsed)
	printSummary(a.outW, "Build", report)
	return report.Err
}

// Clean removes every generated file and the stored build state.
func (a *App) Clean(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	report, err := s.Clean(ctx)
	if err != nil {
		return fmt.Errorf("clean %s: %w", s.ID(), err)
	}
	printSummary(a.outW, "Clean", report)
	return report.Err
}

// Makefile writes the build graph as a makefile to w.
func (a *App) Makefile(ctx context.Context, w io.Writer) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	g, err := s.Graph(ctx)
	if err != nil {
		return err
	}
	return makefile.Render(w, g, makefile.Options{
		CleanCommand: a.model.Build.CleanCommand,
		PostBuild:    a.model.Build.PostBuildCommand,
	})
}

// Watch runs an incremental build, then one more per batch of changes until
// ctx is cancelled. Build failures are reported and watching continues.
func (a *App) Watch(ctx context.Context, debounce time.Duration) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	w, err := watch.New(ctx, a.config.Workspace, watch.Options{
		Debounce: debounce,
		Exclude:  append([]string{a.model.Build.BuildDir + "/**"}, a.model.Build.Exclude...),
	})
	if err != nil {
		return err
	}
	defer w.Close()

	rebuild := func(ctx context.Context, changes *graph.ChangeSet) error {
		err := a.build(ctx, session.Request{Changes: changes})
		var be *executor.BuildError
		switch {
		case err == nil, errors.Is(err, executor.ErrCancelled):
			return nil
		case errors.As(err, &be):
			a.logger.Warn("Build failed, waiting for changes.", "error", err)
			return nil
		default:
			return err
		}
	}

	if err := rebuild(ctx, nil); err != nil {
		return err
	}
	a.logger.Info("👀 Watching for changes.", "workspace", a.config.Workspace, "directories", len(w.WatchList()))
	return w.Run(ctx, rebuild)
}
