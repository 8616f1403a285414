package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/gridbuild/internal/app"
	"github.com/specialistvlad/gridbuild/internal/config"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/hcl"
	"github.com/specialistvlad/gridbuild/internal/statestore"
	"github.com/specialistvlad/gridbuild/internal/watch"
)

// Exit codes returned through ExitError.
const (
	ExitFailure   = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	workspace       string
	configPaths     []string
	logFormat       string
	logLevel        string
	healthcheckPort int
	stateStore      string
	quiet           bool
}

// NewRootCommand builds the gridbuild command tree. Output and help text go
// to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:   "gridbuild",
		Short: "Incremental, parallel build orchestrator",
		Long: `gridbuild builds a project from a declarative HCL tool chain.

Files in the workspace are matched against tool rules, the resulting
dependency graph is compared with the previous build, and only the steps
whose inputs changed are run, in parallel where the graph allows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&gf.workspace, "workspace", "C", ".", "Project root directory.")
	pf.StringSliceVarP(&gf.configPaths, "config", "f", nil, "HCL file or directory to load (default <workspace>/"+app.DefaultConfigFile+").")
	pf.StringVar(&gf.logFormat, "log-format", "auto", "Log output format. Options: 'auto', 'text' or 'json'.")
	pf.StringVar(&gf.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.IntVar(&gf.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	pf.StringVar(&gf.stateStore, "state-store", string(statestore.KindBadger), "Build state backend. Options: 'badger' or 'file'.")
	pf.BoolVarP(&gf.quiet, "quiet", "q", false, "Do not stream process output.")

	root.AddCommand(
		newBuildCommand(gf),
		newCleanCommand(gf),
		newMakefileCommand(gf),
		newWatchCommand(gf),
	)
	return root
}

func newBuildCommand(gf *globalFlags) *cobra.Command {
	var (
		full     bool
		only     []string
		jobs     int
		resume   bool
		failFast bool
	)
	cmd := &cobra.Command{
		Use:   "build [FILE...]",
		Short: "Run an incremental build",
		Long: `Run the steps whose inputs changed since the previous build.

Positional FILE arguments restrict the build to steps consuming them, the
same as --only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume && failFast {
				return usageError(errors.New("--resume-on-error and --fail-fast are mutually exclusive"))
			}
			cfg := gf.config()
			if cmd.Flags().Changed("jobs") {
				cfg.Parallelism = &jobs
			}
			if resume || failFast {
				cfg.ResumeOnError = &resume
			}
			return withApp(cmd, cfg, func(a *app.App) error {
				return a.Build(cmd.Context(), app.BuildOptions{Full: full, Only: append(only, args...)})
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&full, "full", false, "Rebuild every step regardless of stored state.")
	f.StringSliceVar(&only, "only", nil, "Build only the steps consuming these files.")
	f.IntVarP(&jobs, "jobs", "j", 0, "Maximum number of concurrent processes (0 uses the CPU count).")
	f.BoolVarP(&resume, "resume-on-error", "k", false, "Keep building independent steps after a failure.")
	f.BoolVar(&failFast, "fail-fast", false, "Stop dispatching after the first failure.")
	return cmd
}

func newCleanCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove generated files and stored build state",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, gf.config(), func(a *app.App) error {
				return a.Clean(cmd.Context())
			})
		},
	}
}

func newMakefileCommand(gf *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "makefile",
		Short: "Write the build graph as a makefile",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, gf.config(), func(a *app.App) error {
				if output == "" || output == "-" {
					return a.Makefile(cmd.Context(), cmd.OutOrStdout())
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := a.Makefile(cmd.Context(), f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default stdout).")
	return cmd
}

func newWatchCommand(gf *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever workspace files change",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, gf.config(), func(a *app.App) error {
				return a.Watch(cmd.Context(), debounce)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a batch of changes triggers a build.")
	return cmd
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError(fmt.Errorf("unexpected arguments: %v", args))
	}
	return nil
}

func (gf *globalFlags) config() app.Config {
	return app.Config{
		Workspace:       gf.workspace,
		ConfigPaths:     gf.configPaths,
		LogFormat:       gf.logFormat,
		LogLevel:        gf.logLevel,
		HealthcheckPort: gf.healthcheckPort,
		StateStore:      statestore.Kind(gf.stateStore),
		Quiet:           gf.quiet,
	}
}

// withApp validates cfg, opens the application, runs fn and classifies its
// error into an exit code.
func withApp(cmd *cobra.Command, raw app.Config, fn func(*app.App) error) error {
	cfg, err := app.NewConfig(raw)
	if err != nil {
		return usageError(err)
	}
	slog.Debug("CLI parameter validation complete.", "config", cfg)

	a, err := app.NewApp(cmd.Context(), cmd.OutOrStdout(), cfg, newLoader)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	defer a.Close()

	return classify(fn(a))
}

func newLoader(env map[string]string, workspace string) config.Loader {
	return hcl.NewLoader(env, workspace)
}

// classify maps a build outcome to an ExitError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: ExitCancelled, Message: err.Error()}
	}
	switch executor.StatusOf(err) {
	case executor.StatusCancelled:
		return &ExitError{Code: ExitCancelled, Message: err.Error()}
	default:
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
}

// Execute runs the command tree with args. Every returned error is an
// *ExitError.
func Execute(ctx context.Context, outW io.Writer, args []string) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Unknown subcommands and argument validators report plain errors.
	return usageError(err)
}
