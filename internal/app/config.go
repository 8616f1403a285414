package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/gridbuild/internal/statestore"
)

// DefaultConfigFile is the project file looked up in the workspace.
const DefaultConfigFile = "gridbuild.hcl"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Workspace is the project root. Relative paths are made absolute.
	Workspace string
	// ConfigPaths are the HCL files or directories to load. Empty means
	// gridbuild.hcl in the workspace.
	ConfigPaths []string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// Parallelism and ResumeOnError override the project file when set.
	Parallelism   *int
	ResumeOnError *bool

	StateStore statestore.Kind
	// Quiet suppresses process output streaming; failures are still shown.
	Quiet bool
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	abs, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	cfg.Workspace = abs
	if len(cfg.ConfigPaths) == 0 {
		cfg.ConfigPaths = []string{filepath.Join(abs, DefaultConfigFile)}
	}

	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "auto"
	case "auto", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'auto', 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn' or 'error'", cfg.LogLevel)
	}
	if cfg.Parallelism != nil && *cfg.Parallelism < 0 {
		return nil, errors.New("parallelism must not be negative")
	}
	switch cfg.StateStore {
	case "":
		cfg.StateStore = statestore.KindBadger
	case statestore.KindBadger, statestore.KindFile:
	default:
		return nil, fmt.Errorf("invalid state store %q: must be 'badger' or 'file'", cfg.StateStore)
	}
	return &cfg, nil
}
