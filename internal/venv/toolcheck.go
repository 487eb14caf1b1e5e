package venv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/agnt5dev/devloop/internal/execx"
)

// MinUVVersion is the oldest uv release known to support `uv venv` and
// `uv pip install -e` the way the provisioner drives them.
var MinUVVersion = semver.MustParse("0.4.0")

// CheckTool verifies that uv is present and recent enough. An absent tool is
// an error; unparseable version output is only a warning since uv's version
// line format has changed before.
func (p *Provisioner) CheckTool(ctx context.Context) error {
	if _, err := p.Runner.LookPath("uv"); err != nil {
		return fmt.Errorf("uv not found on PATH: %w", err)
	}

	out, err := p.Runner.Output(ctx, execx.Cmd{Name: "uv", Args: []string{"--version"}})
	if err != nil {
		return fmt.Errorf("checking uv version: %w", err)
	}

	v, parseErr := parseToolVersion(out)
	if parseErr != nil {
		p.logger().Warn("cannot parse uv version", slog.String("output", out))

		return nil
	}

	if v.LessThan(MinUVVersion) {
		return fmt.Errorf("uv %s is too old: need at least %s", v, MinUVVersion)
	}

	return nil
}

// parseToolVersion extracts a semantic version from output like
// "uv 0.4.12 (abc1234 2024-09-01)".
func parseToolVersion(out string) (*semver.Version, error) {
	fields := strings.Fields(out)

	for _, f := range fields {
		if v, err := semver.NewVersion(f); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("no version in %q", out)
}
