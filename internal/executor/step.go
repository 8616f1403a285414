// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/procpool"
	"golang.org/x/sync/errgroup"
)

// removeConcurrency bounds the goroutines deleting outputs.
const removeConcurrency = 8

// Launcher starts processes without blocking. procpool.Pool implements it.
type Launcher interface {
	Launch(ctx context.Context, spec procpool.Spec) (*procpool.Handle, error)
	Result(h *procpool.Handle) procpool.Result
	Release(h *procpool.Handle) error
}

// Refresher re-reads the metadata of files a step produced.
type Refresher interface {
	Refresh(ctx context.Context, paths []string) error
}

// Options configure how steps run.
type Options struct {
	// Dir is the working directory of every process.
	Dir string
	// Env is the complete NAME=VALUE environment of every process.
	Env []string
	// Stream receives process output as it is produced. Optional.
	Stream io.Writer
	// CleanCommand and MaxCleanLength drive the commands of clean steps.
	CleanCommand   string
	MaxCleanLength int
	Refresher      Refresher
}

// CommandResult records one finished command of a step.
type CommandResult struct {
	Command  string
	ExitCode int
	Output   []byte
}

// StepExecutor runs the commands of one step in sequence.
type StepExecutor struct {
	step     *graph.Step
	opts     *Options
	commands []string
	next     int

	handle   *procpool.Handle
	done     bool
	status   Status
	err      error
	results  []CommandResult
	started  time.Time
	finished time.Time
}

// New prepares the execution of a step. Clean steps get their commands from
// the clean command, split to respect the maximum command length.
func New(step *graph.Step, opts *Options) *StepExecutor {
	x := &StepExecutor{step: step, opts: opts}
	if step.Kind() == graph.CleanStep {
		var paths []string
		for _, rc := range step.InputResources() {
			paths = append(paths, displayPath(rc))
		}
		if len(paths) > 0 {
			x.commands = CleanCommands(opts.CleanCommand, paths, opts.MaxCleanLength)
		}
	} else {
		x.commands = step.Commands()
	}
	return x
}

// Step returns the step being executed.
func (x *StepExecutor) Step() *graph.Step { return x.step }

// Commands returns the command lines the executor runs.
func (x *StepExecutor) Commands() []string { return append([]string(nil), x.commands...) }

// Handle returns the handle of the running command, or nil.
func (x *StepExecutor) Handle() *procpool.Handle { return x.handle }

// Done reports whether the step is finalized.
func (x *StepExecutor) Done() bool { return x.done }

// Status returns the final status; meaningful once Done.
func (x *StepExecutor) Status() Status { return x.status }

// Err returns the error the step finished with, if any.
func (x *StepExecutor) Err() error { return x.err }

// Results returns the finished commands in order.
func (x *StepExecutor) Results() []CommandResult { return append([]CommandResult(nil), x.results...) }

// Elapsed returns how long the step ran.
func (x *StepExecutor) Elapsed() time.Duration {
	if x.finished.IsZero() {
		return time.Since(x.started)
	}
	return x.finished.Sub(x.started)
}

// Start creates the output directories and launches the first command. A
// step without commands is finalized immediately. The returned error is a
// *LaunchError, or wraps procpool.ErrPoolFull when the caller launched
// without a free slot.
func (x *StepExecutor) Start(ctx context.Context, l Launcher) error {
	x.started = time.Now()
	for _, dir := range x.outputDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lerr := &LaunchError{Step: x.step.String(), Command: "mkdir " + dir, Err: err}
			x.finish(ctx, StatusLaunchError, lerr)
			return lerr
		}
	}
	if len(x.commands) == 0 {
		x.finish(ctx, StatusOK, nil)
		return nil
	}
	return x.launchNext(ctx, l)
}

func (x *StepExecutor) launchNext(ctx context.Context, l Launcher) error {
	line := x.commands[x.next]
	argv, err := Argv(line)
	if err != nil {
		lerr := &LaunchError{Step: x.step.String(), Command: line, Err: err}
		x.finish(ctx, StatusLaunchError, lerr)
		return lerr
	}
	h, err := l.Launch(ctx, procpool.Spec{Argv: argv, Dir: x.opts.Dir, Env: x.opts.Env, Stream: x.opts.Stream})
	if err != nil {
		if errors.Is(err, procpool.ErrPoolFull) {
			return err
		}
		lerr := &LaunchError{Step: x.step.String(), Command: line, Err: err}
		x.finish(ctx, StatusLaunchError, lerr)
		return lerr
	}
	ctxlog.FromContext(ctx).Debug("Command launched.", "step", x.step.String(), "command", line, "index", x.next)
	x.handle = h
	x.next++
	return nil
}

// Advance consumes the result of the finished current command, releases its
// handle, and either launches the next command or finalizes the step. It
// returns a *LaunchError when the next command could not be started.
func (x *StepExecutor) Advance(ctx context.Context, l Launcher) error {
	return x.advance(ctx, l, true)
}

// Stop consumes the result of the finished current command like Advance but
// never launches another one. A step whose last command succeeded is built;
// a step with commands left is finalized as cancelled.
func (x *StepExecutor) Stop(ctx context.Context, l Launcher) error {
	return x.advance(ctx, l, false)
}

func (x *StepExecutor) advance(ctx context.Context, l Launcher, launch bool) error {
	if x.handle == nil || x.done {
		return nil
	}
	h := x.handle
	res := l.Result(h)
	if err := l.Release(h); err != nil {
		return fmt.Errorf("advancing %s: %w", x.step, err)
	}
	x.handle = nil

	line := x.commands[x.next-1]
	x.results = append(x.results, CommandResult{Command: line, ExitCode: res.ExitCode, Output: res.Output})

	switch {
	case res.State == procpool.Cancelled:
		x.finish(ctx, StatusCancelled, ErrCancelled)
		return nil
	case res.ExitCode != 0 || res.Err != nil:
		x.finish(ctx, StatusBuildError, &BuildError{
			Step:     x.step.String(),
			Command:  line,
			ExitCode: res.ExitCode,
			Output:   string(res.Output),
			Err:      res.Err,
		})
		return nil
	case x.next < len(x.commands) && launch:
		return x.launchNext(ctx, l)
	case x.next < len(x.commands):
		ctxlog.FromContext(ctx).Debug("Step stopped before its remaining commands.", "step", x.step.String(),
			"remaining", len(x.commands)-x.next)
		x.finish(ctx, StatusCancelled, ErrCancelled)
		return nil
	default:
		x.finish(ctx, StatusOK, nil)
		return nil
	}
}

// Abort finalizes the step as cancelled without launching anything else.
// A finished current command is recorded and its handle released; a running
// one must have been terminated and finished first.
func (x *StepExecutor) Abort(ctx context.Context, l Launcher) error {
	if x.done {
		return nil
	}
	if h := x.handle; h != nil {
		res := l.Result(h)
		if err := l.Release(h); err != nil {
			return fmt.Errorf("aborting %s: %w", x.step, err)
		}
		x.handle = nil
		x.results = append(x.results, CommandResult{Command: x.commands[x.next-1], ExitCode: res.ExitCode, Output: res.Output})
	}
	x.finish(ctx, StatusCancelled, ErrCancelled)
	return nil
}

func (x *StepExecutor) finish(ctx context.Context, status Status, err error) {
	logger := ctxlog.FromContext(ctx)
	x.done = true
	x.status = status
	x.err = err
	x.finished = time.Now()

	// The outputs of synthetic steps are workspace sources or the build
	// targets, never files the step's commands wrote.
	if x.step.IsVirtual() {
		if status == StatusOK {
			x.step.ClearRebuild()
		}
		return
	}

	if status == StatusOK {
		x.step.MarkBuilt()
		if x.opts.Refresher != nil {
			if rerr := x.opts.Refresher.Refresh(ctx, x.outputPaths()); rerr != nil {
				logger.Warn("Output refresh failed.", "step", x.step.String(), "error", rerr)
			}
		}
		return
	}

	if n, rerr := RemoveFiles(ctx, x.outputPaths()); rerr != nil {
		logger.Warn("Could not remove outputs of failed step.", "step", x.step.String(), "error", rerr)
	} else if n > 0 {
		logger.Debug("Removed outputs of failed step.", "step", x.step.String(), "count", n)
	}
}

func (x *StepExecutor) outputPaths() []string {
	var out []string
	for _, rc := range x.step.OutputResources() {
		out = append(out, rc.Location())
	}
	return out
}

func (x *StepExecutor) outputDirs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range x.outputPaths() {
		d := filepath.Dir(p)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// RemoveFiles deletes the existing files among paths concurrently and returns
// how many it removed. Missing files are not an error.
func RemoveFiles(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	removed := make([]bool, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(removeConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			err := os.Remove(p)
			switch {
			case err == nil:
				removed[i] = true
				return nil
			case errors.Is(err, os.ErrNotExist):
				return nil
			default:
				return err
			}
		})
	}
	err := g.Wait()
	n := 0
	for _, r := range removed {
		if r {
			n++
		}
	}
	return n, err
}

func displayPath(rc *graph.Resource) string {
	if rel := rc.RelPath(); rel != "" {
		return rel
	}
	return rc.Location()
}
