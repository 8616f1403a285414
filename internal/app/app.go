package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/localsession"
	"github.com/specialistvlad/gridbuild/internal/metrics"
	"github.com/specialistvlad/gridbuild/internal/session"
	"github.com/specialistvlad/gridbuild/internal/statestore"
)

// LoaderFunc creates the configuration loader once the environment is known.
type LoaderFunc func(env map[string]string, workspace string) config.Loader

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	model      *config.Model
	env        map[string]string
	metrics    *metrics.Collector
	store      statestore.Store
	factory    session.SessionFactory
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the
// environment and the project file and opens the state store. Output of
// launched processes and of the logger goes to outW.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, newLoader LoaderFunc) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	env, err := loadEnv(cfg.Workspace, os.Environ())
	if err != nil {
		return nil, err
	}

	model, err := newLoader(env, cfg.Workspace).Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Parallelism != nil {
		model.Build.Parallelism = *cfg.Parallelism
	}
	if cfg.ResumeOnError != nil {
		model.Build.ResumeOnError = *cfg.ResumeOnError
	}
	logger.Debug("Configuration loaded.", "tools", len(model.Tools), "build_dir", model.Build.BuildDir)

	store, err := statestore.Open(ctx, cfg.StateStore, model.BuildPath(cfg.Workspace))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	a := &App{
		ctx:     ctx,
		outW:    outW,
		logger:  logger,
		config:  cfg,
		model:   model,
		env:     env,
		metrics: metrics.New(),
		store:   store,
	}
	var stream io.Writer
	if !cfg.Quiet {
		stream = outW
	}
	a.factory = &localsession.SessionFactory{
		Workspace: cfg.Workspace,
		Env:       environ(env),
		Store:     store,
		Observer:  a.metrics,
		Stream:    stream,
	}
	a.healthCheckServer()
	return a, nil
}

// Model returns the loaded configuration model.
func (a *App) Model() *config.Model { return a.model }

// Metrics returns the metrics collector fed by every build.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Close stops the health server and closes the state store.
func (a *App) Close() error {
	err := a.closeHealthCheckServer()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *App) newSession(ctx context.Context) (session.Session, error) {
	s, err := a.factory.NewSession(ctx, a.model)
	if err != nil {
		return nil, fmt.Errorf("failed to create build session: %w", err)
	}
	return s, nil
}
