package venv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agnt5dev/devloop/internal/execx"
)

// install runs the dependency installation sequence into the validated venv,
// strictly in order and fail-fast:
//
//  1. upgrade the native-extension build tool (maturin)
//  2. editable install of the SDK binding
//  3. editable install of the blueprint application
//  4. in-place native extension build
func (p *Provisioner) install(ctx context.Context) error {
	steps := []execx.Cmd{
		{Name: "uv", Args: []string{"pip", "install", "--upgrade", "maturin"}, Env: p.env()},
		{Name: "uv", Args: []string{"pip", "install", "-e", p.SDKDir}, Env: p.env()},
		{Name: "uv", Args: []string{"pip", "install", "-e", p.BlueprintDir}, Env: p.env()},
	}

	for _, step := range steps {
		p.logger().Info("installing", slog.String("cmd", step.String()))

		if err := p.Runner.Run(ctx, step); err != nil {
			return fmt.Errorf("installing dependencies: %w", err)
		}
	}

	return p.BuildNative(ctx)
}

// BuildNative rebuilds the SDK native extension in place. It is called once
// during provisioning and again on every reload cycle.
func (p *Provisioner) BuildNative(ctx context.Context) error {
	cmd := execx.Cmd{
		Name: "maturin",
		Args: []string{"develop"},
		Dir:  p.SDKDir,
		Env:  p.env(),
	}

	p.logger().Info("building native extension", slog.String("dir", p.SDKDir))

	if err := p.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("building native extension: %w", err)
	}

	return nil
}
