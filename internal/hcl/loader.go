package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env       map[string]string
	workspace string
}

// NewLoader creates a new HCL configuration loader. Expressions in the files
// can read the given environment as `env.NAME` and the workspace directory as
// `workspace`.
func NewLoader(env map[string]string, workspace string) *Loader {
	return &Loader{env: env, workspace: workspace}
}

// Load parses every .hcl file found under the given paths and merges their
// blocks into one model. At most one `build` block may appear across all
// files; tools keep the order in which they were read.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := fsutil.FindConfigFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl configuration found in %v", paths)
	}

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	model := &config.Model{}

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, b := range root.Build {
			if model.Build != nil {
				return nil, fmt.Errorf("%s: only one build block is allowed", file)
			}
			model.Build, err = translateBuild(b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, t := range root.Tools {
			tool, err := translateTool(ctx, t, len(model.Tools))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Tools = append(model.Tools, tool)
		}
	}

	if err := model.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("HCL loading complete.", "tools", len(model.Tools))
	return model, nil
}

func (l *Loader) evalContext() *hcl.EvalContext {
	envVal := cty.MapValEmpty(cty.String)
	if len(l.env) > 0 {
		vals := make(map[string]cty.Value, len(l.env))
		for k, v := range l.env {
			vals[k] = cty.StringVal(v)
		}
		envVal = cty.MapVal(vals)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":       envVal,
			"workspace": cty.StringVal(l.workspace),
		},
		Functions: map[string]function.Function{
			"concat": stdlib.ConcatFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
			"lower":  stdlib.LowerFunc,
			"upper":  stdlib.UpperFunc,
		},
	}
}
