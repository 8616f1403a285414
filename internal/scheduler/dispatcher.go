// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package scheduler

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/procpool"
)

// DefaultPollInterval is how long the loop sleeps when it has nothing to do.
const DefaultPollInterval = 50 * time.Millisecond

// Pool is the process pool the dispatcher launches into.
type Pool interface {
	executor.Launcher
	State(h *procpool.Handle) procpool.State
	TerminateAll(ctx context.Context) int
	Size() int
}

// Observer is notified of step lifecycle events. Calls come from the
// dispatcher's loop goroutine.
type Observer interface {
	StepStarted(s *graph.Step)
	StepFinished(s *graph.Step, status executor.Status, elapsed time.Duration)
	SlotsInUse(n int)
}

// Options configure the dispatch loop.
type Options struct {
	// ResumeOnError keeps dispatching independent steps after a build error.
	ResumeOnError bool
	PollInterval  time.Duration
}

// StepReport is the outcome of one finalized step.
type StepReport struct {
	Step    *graph.Step
	Level   int
	Status  executor.Status
	Err     error
	Results []executor.CommandResult
	Elapsed time.Duration
}

// Result is the outcome of one dispatch run.
type Result struct {
	Status executor.Status
	// Err is the first error that decided Status, if any.
	Err error
	// Reports lists finalized steps in completion order.
	Reports []StepReport
	// Skipped lists planned steps that never started.
	Skipped []*graph.Step
	// MaxLevelCompleted is the highest level L such that every planned step
	// of levels 1..L finalized successfully.
	MaxLevelCompleted int
	// PeakSlots is the highest number of steps running at once.
	PeakSlots int
	Launched  int
}

// Failed returns the reports of steps that did not finish successfully.
func (r *Result) Failed() []StepReport {
	var out []StepReport
	for _, rep := range r.Reports {
		if rep.Status != executor.StatusOK {
			out = append(out, rep)
		}
	}
	return out
}

// Dispatcher runs plans through a process pool.
type Dispatcher struct {
	pool     Pool
	exec     *executor.Options
	opts     Options
	observer Observer
}

// NewDispatcher creates a dispatcher. The pool size is the worker budget.
func NewDispatcher(pool Pool, execOpts *executor.Options, opts Options, observer Observer) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if execOpts == nil {
		execOpts = &executor.Options{}
	}
	return &Dispatcher{pool: pool, exec: execOpts, opts: opts, observer: observer}
}

// DefaultParallelism returns the worker budget used when none is configured.
func DefaultParallelism() int { return runtime.NumCPU() }

// run holds the state of one Run call.
type run struct {
	d       *Dispatcher
	plan    *Plan
	pending []*graph.Step
	active  []*executor.StepExecutor
	ok      map[*graph.Step]bool
	failed  map[*graph.Step]bool
	levelOK map[int]int
	levelN  map[int]int
	res     *Result

	stopped   bool
	cancelled bool
	fatal     error
	buildErr  error
}

// Run dispatches every step of the plan and returns once nothing is running.
// The returned error is the one deciding the aggregate status: a
// *executor.LaunchError, executor.ErrCancelled, or the first
// *executor.BuildError.
func (d *Dispatcher) Run(ctx context.Context, plan *Plan) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	r := &run{
		d:       d,
		plan:    plan,
		pending: plan.Steps(),
		ok:      make(map[*graph.Step]bool),
		failed:  make(map[*graph.Step]bool),
		levelOK: make(map[int]int),
		levelN:  make(map[int]int),
		res:     &Result{},
	}
	for _, s := range r.pending {
		l, _ := plan.Level(s)
		r.levelN[l]++
	}
	logger.Debug("Dispatch started.", "steps", plan.Len(), "slots", d.pool.Size(), "resume_on_error", d.opts.ResumeOnError)

	for {
		if ctx.Err() != nil && !r.cancelled {
			r.cancel(ctx)
		}

		if err := r.reap(ctx); err != nil {
			return r.finish(ctx), err
		}

		if r.launchOne(ctx) {
			continue
		}

		if len(r.active) == 0 {
			if !r.stopped && len(r.pending) > 0 {
				// Whatever is left waits on steps that will never succeed.
				logger.Debug("Queued steps are blocked by failed prerequisites.", "count", len(r.pending))
			}
			break
		}

		if r.cancelled {
			time.Sleep(d.opts.PollInterval)
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(d.opts.PollInterval):
		}
	}

	res := r.finish(ctx)
	return res, res.Err
}

func (r *run) cancel(ctx context.Context) {
	r.cancelled = true
	r.stopped = true
	n := r.d.pool.TerminateAll(ctx)
	ctxlog.FromContext(ctx).Warn("🛑 Build cancelled, terminating running processes.", "terminated", n)
}

// reap advances every step whose current process finished.
func (r *run) reap(ctx context.Context) error {
	for i := 0; i < len(r.active); {
		x := r.active[i]
		if h := x.Handle(); h != nil {
			if r.d.pool.State(h) == procpool.Running {
				i++
				continue
			}
			var err error
			switch {
			case r.cancelled:
				err = x.Abort(ctx, r.d.pool)
			case r.stopped:
				err = x.Stop(ctx, r.d.pool)
			default:
				err = x.Advance(ctx, r.d.pool)
			}
			if err != nil && !x.Done() {
				return err
			}
		}
		if !x.Done() {
			i++
			continue
		}
		r.active = append(r.active[:i], r.active[i+1:]...)
		r.finalize(ctx, x)
	}
	return nil
}

// launchOne starts the first ready step. It reports whether it started one.
func (r *run) launchOne(ctx context.Context) bool {
	if r.stopped || len(r.active) >= r.d.pool.Size() {
		return false
	}
	for i, s := range r.pending {
		if !r.ready(s) {
			continue
		}
		if ctx.Err() != nil {
			r.cancel(ctx)
			return false
		}

		x := executor.New(s, r.d.exec)
		err := x.Start(ctx, r.d.pool)
		if errors.Is(err, procpool.ErrPoolFull) {
			return false
		}
		r.pending = append(r.pending[:i], r.pending[i+1:]...)
		r.res.Launched++
		if r.d.observer != nil {
			r.d.observer.StepStarted(s)
		}
		ctxlog.FromContext(ctx).Info("▶️ Step started.", "step", s.String(), "level", r.level(s))

		if x.Done() {
			r.finalize(ctx, x)
			return true
		}
		r.active = append(r.active, x)
		if len(r.active) > r.res.PeakSlots {
			r.res.PeakSlots = len(r.active)
		}
		if r.d.observer != nil {
			r.d.observer.SlotsInUse(len(r.active))
		}
		return true
	}
	return false
}

// ready reports whether every planned step upstream of s has finalized
// successfully. Producers outside the plan are looked through, so a step
// never overtakes planned work behind an unplanned one.
func (r *run) ready(s *graph.Step) bool {
	seen := make(map[*graph.Step]bool)
	var clear func(s *graph.Step) bool
	clear = func(s *graph.Step) bool {
		for _, p := range s.Producers() {
			if p.Kind() == graph.SourceStep || seen[p] {
				continue
			}
			seen[p] = true
			if r.plan.Contains(p) {
				if !r.ok[p] {
					return false
				}
				continue
			}
			if !clear(p) {
				return false
			}
		}
		return true
	}
	return clear(s)
}

func (r *run) level(s *graph.Step) int {
	l, _ := r.plan.Level(s)
	return l
}

func (r *run) finalize(ctx context.Context, x *executor.StepExecutor) {
	logger := ctxlog.FromContext(ctx)
	s := x.Step()
	rep := StepReport{
		Step:    s,
		Level:   r.level(s),
		Status:  x.Status(),
		Err:     x.Err(),
		Results: x.Results(),
		Elapsed: x.Elapsed(),
	}
	r.res.Reports = append(r.res.Reports, rep)
	if r.d.observer != nil {
		r.d.observer.StepFinished(s, rep.Status, rep.Elapsed)
		r.d.observer.SlotsInUse(len(r.active))
	}

	switch rep.Status {
	case executor.StatusOK:
		logger.Info("✅ Step finished.", "step", s.String(), "elapsed", rep.Elapsed)
		r.ok[s] = true
		r.levelOK[rep.Level]++
		r.advanceLevel()
	case executor.StatusBuildError:
		logger.Error("❌ Step failed.", "step", s.String(), "error", rep.Err)
		r.failed[s] = true
		if r.buildErr == nil {
			r.buildErr = rep.Err
		}
		if r.d.opts.ResumeOnError {
			r.skipDependents(ctx, s)
		} else {
			r.stopped = true
		}
	case executor.StatusLaunchError:
		logger.Error("💥 Step could not be launched.", "step", s.String(), "error", rep.Err)
		r.failed[s] = true
		if r.fatal == nil {
			r.fatal = rep.Err
		}
		r.stopped = true
		if !r.cancelled {
			r.d.pool.TerminateAll(ctx)
		}
	case executor.StatusCancelled:
		logger.Warn("Step cancelled.", "step", s.String())
		r.failed[s] = true
	}
}

// skipDependents drops every queued step that transitively consumes the
// outputs of a failed step.
func (r *run) skipDependents(ctx context.Context, failed *graph.Step) {
	logger := ctxlog.FromContext(ctx)
	doomed := make(map[*graph.Step]bool)
	var mark func(s *graph.Step)
	mark = func(s *graph.Step) {
		for _, c := range s.Consumers() {
			if doomed[c] {
				continue
			}
			doomed[c] = true
			mark(c)
		}
	}
	mark(failed)

	kept := r.pending[:0]
	for _, s := range r.pending {
		if doomed[s] {
			logger.Warn("Skipping step due to upstream failure.", "step", s.String(), "dependency", failed.String())
			r.res.Skipped = append(r.res.Skipped, s)
			continue
		}
		kept = append(kept, s)
	}
	r.pending = kept
}

func (r *run) advanceLevel() {
	for l := r.res.MaxLevelCompleted + 1; l <= r.plan.MaxLevel(); l++ {
		if r.levelOK[l] != r.levelN[l] {
			return
		}
		r.res.MaxLevelCompleted = l
	}
}

func (r *run) finish(ctx context.Context) *Result {
	res := r.res
	res.Skipped = append(res.Skipped, r.pending...)
	r.pending = nil

	switch {
	case r.cancelled:
		res.Status = executor.StatusCancelled
		res.Err = executor.ErrCancelled
	case r.fatal != nil:
		res.Status = executor.StatusLaunchError
		res.Err = r.fatal
	case r.buildErr != nil:
		res.Status = executor.StatusBuildError
		res.Err = r.buildErr
	default:
		res.Status = executor.StatusOK
	}
	ctxlog.FromContext(ctx).Debug("Dispatch finished.", "status", res.Status.String(), "launched", res.Launched,
		"skipped", len(res.Skipped), "max_level_completed", res.MaxLevelCompleted, "peak_slots", res.PeakSlots)
	return res
}
