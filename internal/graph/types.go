// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the node types of the build description.
package graph

// Direction tells whether an edge feeds its step or is fed by it.
type Direction int

const (
	// Input edges hold resources consumed by the step.
	Input Direction = iota
	// Output edges hold resources produced by the step.
	Output
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// StepKind distinguishes real tool invocations from synthetic steps.
type StepKind int

const (
	// ToolStep invokes a tool.
	ToolStep StepKind = iota
	// SourceStep is the producer of record for raw, unclaimed files.
	SourceStep
	// SinkStep is the consumer of record for the final artifacts.
	SinkStep
	// CleanStep deletes generated files.
	CleanStep
)

// String returns the string representation of the step kind.
func (k StepKind) String() string {
	switch k {
	case ToolStep:
		return "tool"
	case SourceStep:
		return "source"
	case SinkStep:
		return "sink"
	case CleanStep:
		return "clean"
	default:
		return "unknown"
	}
}

// Tool is the opaque descriptor of the tool a step invokes. The graph only
// needs a name for diagnostics; everything else is interpreted by the
// ToolMatcher that created it.
type Tool interface {
	Name() string
}

// Resource is a build artifact identified by its canonical location.
type Resource struct {
	location     string
	relPath      string
	needsRebuild bool
	removed      bool
	producer     *Edge
	consumers    []*Edge
}

// Edge is a typed, directional grouping of resources attached to one step.
type Edge struct {
	step      *Step
	dir       Direction
	primary   bool
	role      string
	resources []*Resource
}

// Step is a unit of work owning input and output edges.
type Step struct {
	id           int
	kind         StepKind
	tool         Tool
	group        string
	target       bool
	custom       bool
	inputs       []*Edge
	outputs      []*Edge
	commands     []string
	needsRebuild bool
	removed      bool
	detached     bool
}

// Graph owns every resource, edge and step of one build invocation.
type Graph struct {
	root      string
	resources map[string]*Resource
	steps     []*Step
	source    *Step
	sink      *Step
	clean     *Step
	sourceOut *Edge
	sinkIn    *Edge
	nextID    int
}
