package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Defaults applied by Normalize to values the configuration leaves unset.
const (
	DefaultMaxCleanCommandLength = 6000
	DefaultPollInterval          = 50 * time.Millisecond
	DefaultBuildDir              = "build"
	DefaultCleanCommand          = "rm -f"
)

// Model is the unified, format-agnostic representation of a workspace
// configuration: build settings plus the tool chain.
type Model struct {
	Build *Build
	// Tools are kept in declaration order; the first tool whose inputs match
	// a file wins.
	Tools []*Tool
}

// Build holds the settings of the `build` block.
type Build struct {
	// Parallelism is the number of concurrent processes. Zero means one per
	// logical CPU.
	Parallelism           int
	ResumeOnError         bool
	MaxCleanCommandLength int
	PreBuildCommand       string
	PostBuildCommand      string
	CleanCommand          string
	// BuildDir receives every generated file, relative to the workspace.
	BuildDir     string
	PollInterval time.Duration
	// Exclude lists glob patterns of workspace paths never enumerated.
	Exclude []string
}

// ToolKind is the tag of the tool union.
type ToolKind string

const (
	// PerFile tools run once per matching input.
	PerFile ToolKind = "per_file"
	// Batch tools run once over every matching input.
	Batch ToolKind = "batch"
)

// Tool is the format-agnostic representation of a `tool` block.
type Tool struct {
	Name string
	Kind ToolKind
	// Inputs are glob patterns matched against workspace-relative paths.
	Inputs []string
	// Outputs are name patterns. `%` expands to the input's base name
	// without extension.
	Outputs []string
	// Command is the command template; each line is one command.
	Command string
	Target  bool
	Custom  bool
	// Order ranks batch tools when several wait for their inputs.
	Order int
	// Options are the flattened option values available to the command
	// template.
	Options map[string]string
}

// Normalize fills in defaults and validates the model.
func (m *Model) Normalize() error {
	if m.Build == nil {
		m.Build = &Build{}
	}
	b := m.Build
	if b.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", b.Parallelism)
	}
	if b.MaxCleanCommandLength == 0 {
		b.MaxCleanCommandLength = DefaultMaxCleanCommandLength
	}
	if b.MaxCleanCommandLength < 0 {
		return fmt.Errorf("max_clean_command_length must be positive, got %d", b.MaxCleanCommandLength)
	}
	if b.PollInterval <= 0 {
		b.PollInterval = DefaultPollInterval
	}
	if b.BuildDir == "" {
		b.BuildDir = DefaultBuildDir
	}
	if b.CleanCommand == "" {
		b.CleanCommand = DefaultCleanCommand
	}

	seen := make(map[string]struct{}, len(m.Tools))
	for _, t := range m.Tools {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tool %q is declared more than once", t.Name)
		}
		seen[t.Name] = struct{}{}
		switch t.Kind {
		case "":
			t.Kind = PerFile
		case PerFile, Batch:
		default:
			return fmt.Errorf("tool %q: unknown kind %q (want %q or %q)", t.Name, t.Kind, PerFile, Batch)
		}
		if len(t.Inputs) == 0 {
			return fmt.Errorf("tool %q: at least one input pattern is required", t.Name)
		}
		if t.Command == "" {
			return fmt.Errorf("tool %q: command is required", t.Name)
		}
	}
	return nil
}

// BuildPath returns the absolute build directory for a workspace.
func (m *Model) BuildPath(workspace string) string {
	if filepath.IsAbs(m.Build.BuildDir) {
		return m.Build.BuildDir
	}
	return filepath.Join(workspace, filepath.FromSlash(m.Build.BuildDir))
}

// Tool returns the tool with the given name.
func (m *Model) Tool(name string) (*Tool, bool) {
	for _, t := range m.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
