package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridbuild/internal/app"
	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/hcl"
	"github.com/stretchr/testify/require"
)

// Workspace is a temporary project directory with an App loaded from it.
type Workspace struct {
	Root   string
	App    *app.App
	Output *SafeBuffer
}

// WriteFiles creates the given files, keyed by slash-separated relative
// path, under root.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// NewWorkspace writes files into a fresh directory and loads an App from
// its gridbuild.hcl. The app logs at debug level into the returned buffer,
// using the file state store unless cfg says otherwise. Set
// GRIDBUILD_TEST_LOGS=true to print the output of failed tests.
func NewWorkspace(t *testing.T, files map[string]string, cfg app.Config) *Workspace {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)

	cfg.Workspace = root
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.StateStore == "" {
		cfg.StateStore = "file"
	}
	appCfg, err := app.NewConfig(cfg)
	require.NoError(t, err)

	out := &SafeBuffer{}
	a, err := app.NewApp(context.Background(), out, appCfg, func(env map[string]string, workspace string) config.Loader {
		return hcl.NewLoader(env, workspace)
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = a.Close()
		if t.Failed() && os.Getenv("GRIDBUILD_TEST_LOGS") == "true" {
			t.Logf("--- Full Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	return &Workspace{Root: root, App: a, Output: out}
}

// Path returns the absolute path of a workspace-relative file.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Read returns the content of a workspace file.
func (w *Workspace) Read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(w.Path(rel))
	require.NoError(t, err)
	return string(data)
}
