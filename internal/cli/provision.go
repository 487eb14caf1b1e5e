package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agnt5dev/devloop/internal/config"
	"github.com/agnt5dev/devloop/internal/execx"
	"github.com/agnt5dev/devloop/internal/logging"
	"github.com/agnt5dev/devloop/internal/venv"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or repair the worker virtual environment",
		Long: `Provision ensures a valid uv virtual environment exists at the
configured path, creating it if missing and recreating it if corrupt
(no activation marker). It then upgrades maturin, installs the SDK and
the blueprint application in editable mode, and builds the SDK's native
extension in place.

Provisioning is idempotent: an already-valid environment is reused and
only the install steps re-run.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd.Context())
		},
	}

	return cmd
}

// runProvision executes the full provisioning sequence. Any failure is fatal
// to the caller (exit code 1).
func runProvision(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	p := newProvisioner(ctx)

	if err := p.CheckTool(ctx); err != nil {
		return err
	}

	if err := p.Ensure(ctx); err != nil {
		return err
	}

	logger.Info("environment ready", "path", cfg.VenvPath)

	return nil
}

// newProvisioner builds the venv provisioner from the context config.
func newProvisioner(ctx context.Context) *venv.Provisioner {
	cfg := config.FromContext(ctx)

	return &venv.Provisioner{
		Path:         cfg.VenvPath,
		SDKDir:       cfg.SDKPythonDir,
		BlueprintDir: cfg.BlueprintDir,
		Runner:       &execx.Local{},
		Logger:       logging.FromContext(ctx),
	}
}
