// Package inmemorystore provides an ephemeral, thread-safe implementation of
// the statestore.Store interface. It keeps the snapshot for the lifetime of
// the process, which is what `gridbuild watch` needs between rebuilds and
// what tests use in place of a database.
package inmemorystore
