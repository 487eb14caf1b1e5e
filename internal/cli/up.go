package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agnt5dev/devloop/internal/config"
	"github.com/agnt5dev/devloop/internal/logging"
	"github.com/agnt5dev/devloop/internal/supervisor"
	"github.com/agnt5dev/devloop/internal/watch"
)

type upOptions struct {
	debounce time.Duration
	grace    time.Duration
	noWatch  bool
}

func newUpCommand() *cobra.Command {
	opts := &upOptions{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision the environment and run the worker with live reload",
		Long: `Up first provisions the virtual environment (see "devloop provision"),
then starts the worker and watches the blueprint and SDK source trees.

On every change outside the ignore set (target/, .venv/, __pycache__/,
*.pyc) the current worker is terminated, the native extension rebuilt,
and a fresh worker launched. A failed rebuild aborts that cycle without
launching; the watcher keeps waiting for the next change.

Up blocks until interrupted (SIGINT/SIGTERM).`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUp(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&opts.debounce, "debounce", 0, "debounce interval for file changes (default from config)")
	f.DurationVar(&opts.grace, "grace", supervisor.DefaultGrace, "SIGTERM grace period before SIGKILL")
	f.BoolVar(&opts.noWatch, "no-watch", false, "provision and run once, without the watch loop")

	return cmd
}

func runUp(ctx context.Context, cmd *cobra.Command, opts *upOptions) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	// Provisioning failure gates the watch loop.
	if err := runProvision(ctx); err != nil {
		return err
	}

	if opts.noWatch {
		return runWorker(ctx, cmd)
	}

	p := newProvisioner(ctx)

	sup := &supervisor.Supervisor{
		Program: cfg.Python(),
		Args:    []string{cfg.Entrypoint()},
		Dir:     cfg.BlueprintDir,
		Env:     []string{"VIRTUAL_ENV=" + cfg.VenvPath},
		Grace:   opts.grace,
		Logger:  logger,
		Out:     cmd.ErrOrStderr(),
	}
	defer func() { _ = sup.Stop() }()

	debounce := cfg.Debounce
	if opts.debounce > 0 {
		debounce = opts.debounce
	}

	watchOpts := watch.Options{
		Paths:    cfg.WatchPaths(),
		Ignore:   watch.DefaultIgnores(),
		Debounce: debounce,
		Logger:   logger,
		Out:      cmd.ErrOrStderr(),
	}

	return watch.Run(ctx, watchOpts, newReloadCycle(sup, p.BuildNative))
}

// newReloadCycle builds the watch cycle: stop the old worker, rebuild the
// native extension, then launch the replacement. A rebuild failure aborts
// the cycle before the launch step, leaving the worker down until the next
// successful cycle.
func newReloadCycle(sup *supervisor.Supervisor, rebuild func(context.Context) error) watch.CycleFunc {
	return func(ctx context.Context, _ string) error {
		if err := sup.Stop(); err != nil {
			return err
		}

		if err := rebuild(ctx); err != nil {
			return err
		}

		return sup.Start(ctx)
	}
}
