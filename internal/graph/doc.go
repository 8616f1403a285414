// Package graph provides the build description: a directed acyclic graph of
// file resources and the steps that consume and produce them.
//
// # Model
//
// The graph is made of three kinds of nodes:
//   - **Resource:** a source or generated file, keyed by its canonical location.
//   - **Edge:** a directional (input or output) bundle of resources owned by one step.
//   - **Step:** a unit of work. Most steps invoke a tool; the synthetic source step
//     produces every raw file, the synthetic sink step consumes the final artifacts,
//     and a clean step can be created on demand.
//
// A resource has at most one producer edge. Claiming a resource that the source
// step currently owns is a normal reassignment; claiming one owned by another real
// step is a ConsistencyError.
//
// # Lifecycle
//
//  1. **Built** once per invocation by Build from a file enumeration, an optional
//     change set, the previous rebuild-state snapshot and a ToolMatcher.
//  2. **Pruned** so that only steps contributing to the sink remain.
//  3. **Propagated** so that every step and resource carries its final
//     needs-rebuild / removed flags.
//  4. **Executed** by the scheduler, which clears the flags of steps that succeed.
//  5. **Captured** into a Snapshot for the next incremental build, then discarded.
//
// # Thread-Safety
//
// A Graph is not safe for concurrent mutation. It is owned by a single
// coordinating goroutine for its whole lifetime.
package graph
