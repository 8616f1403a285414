package executor

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"github.com/specialistvlad/gridbuild/internal/toolchain"
)

// DefaultMaxCommandLength bounds one clean invocation.
const DefaultMaxCommandLength = 6000

// ArgPadding is the fixed cost counted for every argument of a split command.
const ArgPadding = 3

const shellMeta = "|&;<>()$`*?[]{}~!#\n"

// Argv turns a resolved command line into an argument vector. Lines using
// shell syntax run through /bin/sh; plain lines are split like a shell would
// and executed directly.
func Argv(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command line")
	}
	if strings.ContainsAny(line, shellMeta) {
		return []string{"/bin/sh", "-c", line}, nil
	}
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command line %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return argv, nil
}

// SplitArgs distributes args over as few invocations of prefix as possible
// such that len(prefix) plus, for every argument, its length and padding never
// exceeds maxLen. An argument that does not fit even alone gets an invocation
// of its own.
func SplitArgs(prefix string, args []string, maxLen, padding int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxCommandLength
	}
	var out []string
	var b strings.Builder
	size, count := 0, 0
	flush := func() {
		if count > 0 {
			out = append(out, b.String())
		}
		b.Reset()
		b.WriteString(prefix)
		size, count = len(prefix), 0
	}
	flush()

	for _, a := range args {
		cost := len(a) + padding
		if count > 0 && size+cost > maxLen {
			flush()
		}
		b.WriteByte(' ')
		b.WriteString(a)
		size += cost
		count++
	}
	flush()
	return out
}

// CleanCommands builds the commands deleting paths with the clean command.
func CleanCommands(cleanCommand string, paths []string, maxLen int) []string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = toolchain.Quote(p)
	}
	return SplitArgs(cleanCommand, quoted, maxLen, ArgPadding)
}
