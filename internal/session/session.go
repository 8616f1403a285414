// Package session defines the interfaces for creating and running one build
// invocation. A session owns everything that must not outlive the invocation:
// its id, its logger, its tool matcher and its process pool.
package session

import (
	"context"
	"time"

	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/graph"
	"github.com/specialistvlad/gridbuild/internal/scheduler"
)

// SessionFactory creates a Session from a loaded configuration.
type SessionFactory interface {
	NewSession(ctx context.Context, cfg *config.Model) (Session, error)
}

// Request selects what a build dispatches.
type Request struct {
	// Changes lists what changed since the previous build. Nil lets the
	// session work it out.
	Changes *graph.ChangeSet
	// Full rebuilds every step regardless of the stored state.
	Full bool
	// Only restricts the build to the steps consuming these workspace paths.
	Only []string
}

// Report is the outcome of one build or clean.
type Report struct {
	ID     string
	Status executor.Status
	Err    error
	// PreBuild and Dispatch are nil when the phase had nothing to run.
	PreBuild *scheduler.Result
	Dispatch *scheduler.Result
	// StaleRemoved counts outputs of removed steps deleted before dispatch.
	StaleRemoved int
	Elapsed      time.Duration
}

// NothingToBuild reports whether no step was eligible.
func (r *Report) NothingToBuild() bool {
	return r.PreBuild == nil && r.Dispatch == nil && r.Err == nil
}

// Results returns the dispatch results of both phases in order.
func (r *Report) Results() []*scheduler.Result {
	var out []*scheduler.Result
	for _, res := range []*scheduler.Result{r.PreBuild, r.Dispatch} {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// Session is one build invocation.
type Session interface {
	ID() string
	// Build constructs the graph, dispatches the eligible steps and saves
	// the new rebuild state.
	Build(ctx context.Context, req Request) (*Report, error)
	// Clean removes every generated file and forgets the rebuild state.
	Clean(ctx context.Context) (*Report, error)
	// Graph constructs the full graph without running anything.
	Graph(ctx context.Context) (*graph.Graph, error)
	// Close releases any resources held by the session. It accepts a context
	// to allow for graceful cleanup operations.
	Close(ctx context.Context) error
}
