package graph

import (
	"errors"
	"fmt"
)

// ConsistencyKind classifies a ConsistencyError.
type ConsistencyKind int

const (
	// DuplicateProducer means two real steps claimed the same resource.
	DuplicateProducer ConsistencyKind = iota
	// Cycle means the producer/consumer relation is not acyclic.
	Cycle
	// Detached means a step or edge was used after it left the graph.
	Detached
)

// String returns the string representation of the kind.
func (k ConsistencyKind) String() string {
	switch k {
	case DuplicateProducer:
		return "duplicate producer"
	case Cycle:
		return "cycle"
	case Detached:
		return "detached node"
	default:
		return "unknown"
	}
}

// ConsistencyError reports a construction bug in the build description. It is
// always fatal: the build aborts as soon as one is found.
type ConsistencyError struct {
	Kind     ConsistencyKind
	Resource string
	Detail   string
}

// Error implements the error interface for ConsistencyError.
func (e *ConsistencyError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("build graph consistency error (%s) at %s: %s", e.Kind, e.Resource, e.Detail)
	}
	return fmt.Sprintf("build graph consistency error (%s): %s", e.Kind, e.Detail)
}

// IsConsistencyError reports whether err wraps a ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
