// Package toolchain implements graph.ToolMatcher on top of the tool blocks of
// a workspace configuration.
//
// Every configured tool becomes a Rule. Rules are a tagged union over
// RuleKind: a PerFile rule yields one step per matching file, a Batch rule
// collects every matching file into a single step. A file is matched against
// the rules in declaration order and the first rule whose input globs accept
// the file's workspace-relative path wins.
//
// # Outputs
//
// Output patterns are resolved relative to the build directory. For PerFile
// rules, `%` expands to the stem of the primary input, and the input's
// directory is mirrored under the build directory. Batch outputs are taken
// literally.
//
// # Commands
//
// Command templates substitute `$in`, `$out`, `$out_dir`, `$stem` and every
// tool option by name. `$$` produces a literal dollar. Unknown names are left
// in place for the shell. Every non-empty line of a template is one command.
package toolchain
