package toolchain

import (
	"context"
	"fmt"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
)

const matchCacheSize = 4096

// Matcher resolves tools, outputs and commands from configured rules. It is
// built per invocation and is not safe for concurrent use by several builds.
type Matcher struct {
	rules    []*Rule
	buildDir string
	// matches memoizes the rule index chosen for a relative path, -1 for none.
	matches *lru.Cache[string, int]
}

// New creates a matcher from a normalized configuration model.
func New(ctx context.Context, m *config.Model) (*Matcher, error) {
	cache, err := lru.New[string, int](matchCacheSize)
	if err != nil {
		return nil, err
	}
	mt := &Matcher{
		buildDir: path.Clean(m.Build.BuildDir),
		matches:  cache,
	}
	for _, t := range m.Tools {
		r, err := NewRule(t)
		if err != nil {
			return nil, err
		}
		mt.rules = append(mt.rules, r)
	}
	ctxlog.FromContext(ctx).Debug("Tool chain ready.", "rules", len(mt.rules), "build_dir", mt.buildDir)
	return mt, nil
}

// Rules returns the configured rules in declaration order.
func (m *Matcher) Rules() []*Rule { return append([]*Rule(nil), m.rules...) }

// BuildDir returns the workspace-relative directory receiving generated files.
func (m *Matcher) BuildDir() string { return m.buildDir }

// Match implements graph.ToolMatcher. Resources outside the workspace never
// match.
func (m *Matcher) Match(rc *graph.Resource) (graph.Match, bool) {
	rel := rc.RelPath()
	if rel == "" {
		return graph.Match{}, false
	}
	idx, ok := m.matches.Get(rel)
	if !ok {
		idx = -1
		for i, r := range m.rules {
			if r.Accepts(rel) {
				idx = i
				break
			}
		}
		m.matches.Add(rel, idx)
	}
	if idx < 0 {
		return graph.Match{}, false
	}
	r := m.rules[idx]
	return graph.Match{
		Tool:    r,
		Primary: true,
		Batch:   r.Kind == Batch,
		Target:  r.Target,
		Custom:  r.Custom,
		Order:   r.Order,
	}, true
}

// Outputs implements graph.ToolMatcher.
func (m *Matcher) Outputs(step *graph.Step) ([]string, error) {
	r, err := ruleOf(step)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(r.outputs))
	if r.Kind == Batch {
		for _, p := range r.outputs {
			out = append(out, m.place(p, "."))
		}
		return out, nil
	}

	primary := step.PrimaryInputResources()
	if len(primary) == 0 {
		return nil, fmt.Errorf("step %s has no primary input", step)
	}
	rel := primary[0].RelPath()
	stem := stemOf(rel)
	dir := path.Dir(rel)
	if dir == m.buildDir {
		dir = "."
	} else if strings.HasPrefix(dir, m.buildDir+"/") {
		dir = strings.TrimPrefix(dir, m.buildDir+"/")
	}
	for _, p := range r.outputs {
		out = append(out, m.place(strings.ReplaceAll(p, "%", stem), dir))
	}
	return out, nil
}

// place resolves an output name under the build directory. Absolute names
// are kept as they are.
func (m *Matcher) place(name, dir string) string {
	if path.IsAbs(name) {
		return name
	}
	return path.Join(m.buildDir, dir, name)
}

// Commands implements graph.ToolMatcher. Removed inputs are left out of
// `$in`.
func (m *Matcher) Commands(step *graph.Step) ([]string, error) {
	r, err := ruleOf(step)
	if err != nil {
		return nil, err
	}

	var live []*graph.Resource
	for _, rc := range step.PrimaryInputResources() {
		if !rc.IsRemoved() {
			live = append(live, rc)
		}
	}
	ins := displayPaths(live)
	outs := displayPaths(step.OutputResources())
	vars := make(map[string]string, len(r.Options)+4)
	for k, v := range r.Options {
		vars[k] = v
	}
	vars["in"] = joinQuoted(ins)
	vars["out"] = joinQuoted(outs)
	if len(outs) > 0 {
		vars["out_dir"] = Quote(path.Dir(outs[0]))
	}
	if len(ins) > 0 {
		vars["stem"] = stemOf(ins[0])
	}

	var cmds []string
	for _, line := range strings.Split(r.command, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmds = append(cmds, Expand(line, vars))
	}
	return cmds, nil
}

func ruleOf(step *graph.Step) (*Rule, error) {
	r, ok := step.Tool().(*Rule)
	if !ok {
		return nil, fmt.Errorf("step %s was not created by the tool chain", step)
	}
	return r, nil
}

func displayPaths(rcs []*graph.Resource) []string {
	out := make([]string, 0, len(rcs))
	for _, rc := range rcs {
		if rel := rc.RelPath(); rel != "" {
			out = append(out, rel)
		} else {
			out = append(out, rc.Location())
		}
	}
	return out
}

func stemOf(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
