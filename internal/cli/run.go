package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agnt5dev/devloop/internal/config"
	"github.com/agnt5dev/devloop/internal/logging"
	"github.com/agnt5dev/devloop/internal/supervisor"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker once in the foreground",
		Long: `Run launches the blueprint worker entry point with the venv python
interpreter and blocks until it exits. No provisioning and no watch
loop — this is the container entry path; the environment is expected
to be ready.

The worker's exit status becomes devloop's exit status. SIGINT and
SIGTERM are forwarded to the worker.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), cmd)
		},
	}

	return cmd
}

func runWorker(ctx context.Context, cmd *cobra.Command) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	sup := &supervisor.Supervisor{
		Program: cfg.Python(),
		Args:    []string{cfg.Entrypoint()},
		Dir:     cfg.BlueprintDir,
		Env:     []string{"VIRTUAL_ENV=" + cfg.VenvPath},
		Logger:  logger,
		Out:     cmd.ErrOrStderr(),
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(sigCtx); err != nil {
		return err
	}

	err := sup.Wait(sigCtx)
	if err == nil || sigCtx.Err() != nil {
		// Interrupted termination exits zero.
		return nil
	}

	return &ExitError{Code: supervisor.ExitCode(err), Err: err}
}
