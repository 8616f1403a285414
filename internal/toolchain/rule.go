package toolchain

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/specialistvlad/gridbuild/internal/config"
)

// RuleKind is the tag of the Rule union.
type RuleKind int

const (
	// PerFile rules create one step per matching resource.
	PerFile RuleKind = iota
	// Batch rules create one step for every matching resource.
	Batch
)

// String returns the string representation of the kind.
func (k RuleKind) String() string {
	if k == Batch {
		return "batch"
	}
	return "per_file"
}

// Rule is a configured tool. It is the graph.Tool descriptor of the steps it
// creates.
type Rule struct {
	Kind    RuleKind
	Order   int
	Target  bool
	Custom  bool
	Options map[string]string

	name    string
	inputs  []string
	outputs []string
	command string
}

// NewRule validates a configured tool and turns it into a rule.
func NewRule(t *config.Tool) (*Rule, error) {
	r := &Rule{
		Order:   t.Order,
		Target:  t.Target,
		Custom:  t.Custom,
		Options: t.Options,
		name:    t.Name,
		inputs:  t.Inputs,
		outputs: t.Outputs,
		command: t.Command,
	}
	switch t.Kind {
	case config.PerFile, "":
		r.Kind = PerFile
	case config.Batch:
		r.Kind = Batch
	default:
		return nil, fmt.Errorf("tool %q: unknown kind %q", t.Name, t.Kind)
	}

	for _, p := range r.inputs {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("tool %q: invalid input pattern %q: %w", t.Name, p, err)
		}
	}
	if r.Kind == Batch {
		for _, p := range r.outputs {
			if strings.Contains(p, "%") {
				return nil, fmt.Errorf("tool %q: batch output %q cannot use %%", t.Name, p)
			}
		}
	}
	return r, nil
}

// Name implements graph.Tool.
func (r *Rule) Name() string { return r.name }

// Accepts reports whether a workspace-relative path matches one of the input
// globs of the rule.
func (r *Rule) Accepts(rel string) bool {
	for _, p := range r.inputs {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
