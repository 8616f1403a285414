package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Build  []*buildBlock `hcl:"build,block"`
	Tools  []*toolBlock  `hcl:"tool,block"`
	Remain hcl.Body      `hcl:",remain"`
}

// buildBlock represents the `build` block holding workspace-wide settings.
type buildBlock struct {
	Parallelism           *int     `hcl:"parallelism,optional"`
	ResumeOnError         *bool    `hcl:"resume_on_error,optional"`
	MaxCleanCommandLength *int     `hcl:"max_clean_command_length,optional"`
	PreBuild              string   `hcl:"pre_build,optional"`
	PostBuild             string   `hcl:"post_build,optional"`
	CleanCommand          string   `hcl:"clean_command,optional"`
	BuildDir              string   `hcl:"build_dir,optional"`
	PollInterval          string   `hcl:"poll_interval,optional"`
	Exclude               []string `hcl:"exclude,optional"`
}

// toolBlock represents a `tool "<name>"` block.
type toolBlock struct {
	Name    string     `hcl:"name,label"`
	Kind    string     `hcl:"kind,optional"`
	Inputs  []string   `hcl:"inputs"`
	Outputs []string   `hcl:"outputs,optional"`
	Command string     `hcl:"command"`
	Target  bool       `hcl:"target,optional"`
	Custom  bool       `hcl:"custom,optional"`
	Order   *int       `hcl:"order,optional"`
	Options *cty.Value `hcl:"options,optional"`
}
