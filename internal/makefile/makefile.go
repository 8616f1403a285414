// Package makefile renders a resolved build graph as a GNU makefile. Every
// live tool step becomes one rule whose recipe is the step's command lines.
package makefile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/gridbuild/internal/graph"
)

// Options tune the rendering.
type Options struct {
	// CleanCommand is the recipe prefix of the clean rule. Empty omits the rule.
	CleanCommand string
	// PostBuild becomes the recipe of the all rule.
	PostBuild string
}

// Render writes the makefile for g. Steps are emitted in creation order.
// Multi-output steps use grouped targets (`&:`), which need GNU make 4.3.
func Render(w io.Writer, g *graph.Graph, opts Options) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format, args...) }

	p("# Generated by gridbuild. Do not edit.\n\n")
	p(".PHONY: all clean\n\n")

	p("all:%s\n", list(g.Sink().InputResources()))
	if opts.PostBuild != "" {
		p("\t%s\n", escape(opts.PostBuild))
	}
	p("\n")

	for _, s := range g.ToolSteps() {
		if s.IsRemoved() {
			continue
		}
		outs := s.OutputResources()
		if len(outs) == 0 {
			continue
		}
		sep := ":"
		if len(outs) > 1 {
			sep = " &:"
		}
		p("%s%s%s\n", strings.TrimPrefix(list(outs), " "), sep, list(s.InputResources()))
		for _, c := range s.Commands() {
			p("\t%s\n", escape(c))
		}
		p("\n")
	}

	if opts.CleanCommand != "" {
		p("clean:\n")
		if gen := g.Generated(); len(gen) > 0 {
			p("\t-%s%s\n", escape(opts.CleanCommand), list(gen))
		}
	}
	return bw.Flush()
}

func list(rcs []*graph.Resource) string {
	var b strings.Builder
	for _, rc := range rcs {
		b.WriteByte(' ')
		b.WriteString(escape(path(rc)))
	}
	return b.String()
}

func path(rc *graph.Resource) string {
	if rel := rc.RelPath(); rel != "" {
		return rel
	}
	return rc.Location()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
