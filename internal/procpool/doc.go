// Package procpool runs external processes in a fixed number of reusable
// slots.
//
// # Model
//
// A Pool owns a fixed array of Handles. Launch starts a process in the first
// handle that is in the Illegal state (never launched, or released) and
// returns immediately. A goroutine per launched process waits for it and
// records the exit code; callers discover completion by polling State, never
// by blocking on the process.
//
// # Lifecycle
//
//	Illegal --Launch--> Running --exit--> Done --Release--> Illegal
//	                       |
//	                   Terminate
//	                       v
//	                   Cancelled --Release--> Illegal
//
// # Thread-Safety
//
// Handle state is guarded by the pool's mutex, so the waiting goroutines and
// the polling caller never race.
package procpool
