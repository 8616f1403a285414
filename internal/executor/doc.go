// Package executor runs the resolved command sequence of one build step.
//
// A StepExecutor never blocks on a process: Start launches the first command
// through a Launcher, and Advance is called by the dispatcher once the
// command's handle has finished, either to launch the next command or to
// finalize the step. Finalizing a successful step clears its rebuild markers
// and asks the Refresher to re-read the produced files; finalizing a failed
// or cancelled step removes whatever outputs exist on disk, so a partial
// artifact is never mistaken for a valid one.
package executor
