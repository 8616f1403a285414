package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gridbuild.hcl", `
build {
  parallelism     = 3
  resume_on_error = true
  pre_build       = "echo start"
  build_dir       = "out"
  poll_interval   = "10ms"
  exclude         = ["vendor/**"]
}

tool "cc" {
  inputs  = ["**/*.c"]
  outputs = ["%.o"]
  command = "${env.CC} $cflags -c $in -o $out"
  options = {
    cflags  = ["-O2", "-Wall"]
    debug   = true
    jobs    = 4
    include = "${workspace}/include"
  }
}

tool "ld" {
  kind    = "batch"
  inputs  = ["**/*.o"]
  outputs = ["app"]
  command = "cc -o $out $in"
  target  = true
  order   = 10
}
`)

	loader := NewLoader(map[string]string{"CC": "clang"}, "/ws")
	m, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	require.NotNil(t, m.Build)
	assert.Equal(t, 3, m.Build.Parallelism)
	assert.True(t, m.Build.ResumeOnError)
	assert.Equal(t, "echo start", m.Build.PreBuildCommand)
	assert.Equal(t, "out", m.Build.BuildDir)
	assert.Equal(t, 10*time.Millisecond, m.Build.PollInterval)
	assert.Equal(t, []string{"vendor/**"}, m.Build.Exclude)
	assert.Equal(t, config.DefaultMaxCleanCommandLength, m.Build.MaxCleanCommandLength)

	require.Len(t, m.Tools, 2)
	cc := m.Tools[0]
	assert.Equal(t, "cc", cc.Name)
	assert.Equal(t, config.PerFile, cc.Kind)
	assert.Equal(t, "clang $cflags -c $in -o $out", cc.Command)
	assert.Equal(t, 0, cc.Order)
	assert.Equal(t, map[string]string{
		"cflags":  "-O2 -Wall",
		"debug":   "true",
		"jobs":    "4",
		"include": "/ws/include",
	}, cc.Options)

	ld := m.Tools[1]
	assert.Equal(t, config.Batch, ld.Kind)
	assert.True(t, ld.Target)
	assert.Equal(t, 10, ld.Order)
	assert.Empty(t, ld.Options)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hcl", `tool "one" {
  inputs  = ["*.a"]
  command = "one $in"
}`)
	writeFile(t, dir, "sub/b.hcl", `tool "two" {
  inputs  = ["*.b"]
  command = "two $in"
}`)
	writeFile(t, dir, "notes.txt", "not configuration")

	m, err := NewLoader(nil, dir).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, m.Tools, 2)
	assert.Equal(t, "one", m.Tools[0].Name)
	assert.Equal(t, "two", m.Tools[1].Name)
	assert.Equal(t, 1, m.Tools[1].Order)
	assert.Equal(t, config.DefaultBuildDir, m.Build.BuildDir, "a missing build block gets defaults")
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "syntax error",
			content: `tool "cc" {`,
			want:    "failed to parse",
		},
		{
			name:    "missing required attribute",
			content: `tool "cc" { inputs = ["*.c"] }`,
			want:    "failed to decode",
		},
		{
			name: "unknown variable",
			content: `tool "cc" {
  inputs  = ["*.c"]
  command = "${nope}"
}`,
			want: "failed to decode",
		},
		{
			name: "two build blocks",
			content: `build {}
build {}`,
			want: "only one build block",
		},
		{
			name:    "bad poll interval",
			content: `build { poll_interval = "soon" }`,
			want:    "invalid poll_interval",
		},
		{
			name: "options not an object",
			content: `tool "cc" {
  inputs  = ["*.c"]
  command = "cc"
  options = "-O2"
}`,
			want: "options must be an object",
		},
		{
			name: "invalid model",
			content: `tool "cc" {
  kind    = "sometimes"
  inputs  = ["*.c"]
  command = "cc"
}`,
			want: "invalid configuration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "gridbuild.hcl", tc.content)
			_, err := NewLoader(nil, "/ws").Load(context.Background(), path)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadWithoutConfiguration(t *testing.T) {
	_, err := NewLoader(nil, "/ws").Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "no .hcl configuration")
}
