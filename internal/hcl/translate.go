// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic configuration model defined in the config package.

package hcl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// translateBuild converts the HCL-specific build block into the agnostic model.
func translateBuild(b *buildBlock) (*config.Build, error) {
	out := &config.Build{
		PreBuildCommand:  b.PreBuild,
		PostBuildCommand: b.PostBuild,
		CleanCommand:     b.CleanCommand,
		BuildDir:         b.BuildDir,
		Exclude:          b.Exclude,
	}
	if b.Parallelism != nil {
		out.Parallelism = *b.Parallelism
	}
	if b.ResumeOnError != nil {
		out.ResumeOnError = *b.ResumeOnError
	}
	if b.MaxCleanCommandLength != nil {
		out.MaxCleanCommandLength = *b.MaxCleanCommandLength
	}
	if b.PollInterval != "" {
		d, err := time.ParseDuration(b.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval %q: %w", b.PollInterval, err)
		}
		out.PollInterval = d
	}
	return out, nil
}

// translateTool converts the HCL-specific tool block into the agnostic model.
func translateTool(ctx context.Context, t *toolBlock, index int) (*config.Tool, error) {
	opts, err := flattenOptions(ctx, t.Options)
	if err != nil {
		return nil, fmt.Errorf("in tool '%s': %w", t.Name, err)
	}
	order := index
	if t.Order != nil {
		order = *t.Order
	}
	return &config.Tool{
		Name:    t.Name,
		Kind:    config.ToolKind(t.Kind),
		Inputs:  t.Inputs,
		Outputs: t.Outputs,
		Command: t.Command,
		Target:  t.Target,
		Custom:  t.Custom,
		Order:   order,
		Options: opts,
	}, nil
}

// flattenOptions turns the `options` object into NAME=VALUE strings the
// command template can substitute. Collections are joined with spaces.
func flattenOptions(ctx context.Context, v *cty.Value) (map[string]string, error) {
	if v == nil || v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("options must be an object, got %s", ty.FriendlyName())
	}

	logger := ctxlog.FromContext(ctx)
	out := make(map[string]string, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		name := k.AsString()
		s, err := optionString(ev)
		if err != nil {
			return nil, fmt.Errorf("option '%s': %w", name, err)
		}
		logger.Debug("Tool option resolved.", "option", name, "type", ev.Type().FriendlyName())
		out[name] = s
	}
	return out, nil
}

func optionString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known at load time")
	}
	ty := v.Type()
	if ty.IsListType() || ty.IsTupleType() || ty.IsSetType() {
		var parts []string
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := optionString(ev)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "), nil
	}

	sv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("cannot convert %s to string: %w", ty.FriendlyName(), err)
	}
	var s string
	if err := gocty.FromCtyValue(sv, &s); err != nil {
		return "", err
	}
	return s, nil
}
