// Package scheduler decides which build steps run, in which order, and runs
// them as external processes under a bounded worker budget.
//
// # Why Scheduler Exists
//
// The graph knows what is dirty; the scheduler turns that into work. It is
// split in two parts:
//   - **Leveler:** assigns every eligible step a dependency level by walking
//     producer links backwards from the sink, and produces an ordered Plan.
//   - **Dispatcher:** a single poll-based control loop that launches ready
//     steps into a procpool.Pool, reaps finished processes, and applies the
//     failure policy and cancellation.
//
// # How It Works
//
// The dispatcher repeats, until nothing is queued or running:
//  1. Reap every slot whose process finished: launch the step's next command,
//     or finalize the step.
//  2. Launch the first queued step whose producers have all finalized
//     successfully (or are not part of the plan).
//  3. Otherwise sleep for the poll interval, waking early on cancellation.
//
// A step therefore never starts before its prerequisites, but steps of
// different levels run side by side as soon as their own inputs are ready.
//
// # Thread-Safety
//
// The graph is mutated only by the dispatcher's loop goroutine. Concurrency
// is between OS processes; the only shared structure is the pool's handle
// array, which the pool guards itself.
package scheduler
