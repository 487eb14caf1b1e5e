// Package cli implements the cobra command tree for devloop.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agnt5dev/devloop/internal/config"
	"github.com/agnt5dev/devloop/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// noArgs is cobra.NoArgs with the usage error mapped to exit code 2, the
// same code flag parsing errors carry.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	return nil
}

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return 1
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "devloop",
		Short: "Provision and live-reload a worker development environment",
		Long: `devloop manages the local development loop for Python worker
services that embed a native SDK binding.

It provisions a uv-managed virtual environment with the SDK and the
blueprint application installed in editable mode, builds the native
extension, and then watches the source trees: every change rebuilds the
extension and replaces the running worker process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.Setup(cfg)

			if cfg.NoColor {
				color.NoColor = true
			}

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("workspace", cfg.Workspace),
				slog.String("venvPath", cfg.VenvPath),
				slog.String("logLevel", cfg.LogLevel),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .devloop.yaml)")
	pf.String("workspace", config.DefaultWorkspace, "workspace root directory")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newUpCommand(),
		newProvisionCommand(),
		newRunCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)

	return cmd
}
