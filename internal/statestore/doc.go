// Package statestore persists the rebuild snapshot between build
// invocations. A snapshot is the only state a build carries forward: for
// every known resource, whether it still needs a rebuild and whether it was
// removed.
//
// Two durable backends are provided. Badger keeps the snapshot in an
// embedded key-value database under the build directory; File keeps it as a
// human-readable YAML document, which is also the export format of the
// `state` commands. The in-memory implementation lives in
// internal/inmemorystore.
package statestore
