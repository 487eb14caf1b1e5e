// Package venv provisions the uv-managed virtual environment the worker
// runs in. A venv is considered valid when its activation marker
// (bin/activate) exists; anything else is treated as corrupt and rebuilt
// from scratch.
package venv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnt5dev/devloop/internal/execx"
)

// markerRelPath is the activation marker relative to the venv root.
const markerRelPath = "bin/activate"

// ErrMarkerMissing reports a venv directory without an activation marker.
var ErrMarkerMissing = errors.New("venv activation marker missing")

// Provisioner creates and repairs the virtual environment and installs the
// SDK, the blueprint application, and the native-extension build tool.
type Provisioner struct {
	// Path is the venv root directory.
	Path string

	// SDKDir is the SDK python binding source directory (editable install,
	// native extension build).
	SDKDir string

	// BlueprintDir is the blueprint application source directory (editable
	// install).
	BlueprintDir string

	// Runner executes the uv/maturin commands.
	Runner execx.Runner

	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}

	return slog.Default()
}

// MarkerPath returns the activation marker location for the configured venv.
func (p *Provisioner) MarkerPath() string {
	return filepath.Join(p.Path, markerRelPath)
}

// Valid reports whether the venv exists and carries its activation marker.
func (p *Provisioner) Valid() bool {
	info, err := os.Stat(p.MarkerPath())

	return err == nil && info.Mode().IsRegular()
}

// Ensure makes the venv valid and fully installed, idempotently:
// a missing venv is created, a corrupt one (no activation marker) is purged
// and recreated, and a valid one is left untouched. The install sequence
// runs in every case. Any failure is returned as-is; there is no retry.
func (p *Provisioner) Ensure(ctx context.Context) error {
	log := p.logger()

	switch {
	case !p.exists():
		log.Info("creating venv", slog.String("path", p.Path))

		if err := p.create(ctx); err != nil {
			return err
		}

	case !p.Valid():
		log.Warn("venv is corrupt, recreating", slog.String("path", p.Path))
		p.purge()

		if err := p.create(ctx); err != nil {
			return err
		}

	default:
		log.Debug("venv already valid", slog.String("path", p.Path))
	}

	// Creation must have produced the marker.
	if !p.Valid() {
		return fmt.Errorf("%w at %s; contents: %s",
			ErrMarkerMissing, p.MarkerPath(), p.listContents())
	}

	return p.install(ctx)
}

func (p *Provisioner) exists() bool {
	_, err := os.Stat(p.Path)

	return err == nil
}

// create makes the venv directory (with parents) and runs `uv venv`. On
// failure the error reports whether uv is available on PATH at all.
func (p *Provisioner) create(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("creating venv parent directory: %w", err)
	}

	cmd := execx.Cmd{Name: "uv", Args: []string{"venv", p.Path}}

	if err := p.Runner.Run(ctx, cmd); err != nil {
		if _, lookErr := p.Runner.LookPath("uv"); lookErr != nil {
			return fmt.Errorf("creating venv: uv not found on PATH: %w", err)
		}

		return fmt.Errorf("creating venv: %w", err)
	}

	return nil
}

// purge removes the venv contents best-effort. Individual removal failures
// are logged, not returned; the subsequent create decides whether the venv
// is usable.
func (p *Provisioner) purge() {
	entries, err := os.ReadDir(p.Path)
	if err != nil {
		p.logger().Warn("reading venv for purge",
			slog.String("path", p.Path), slog.String("error", err.Error()))

		return
	}

	for _, e := range entries {
		target := filepath.Join(p.Path, e.Name())
		if rmErr := os.RemoveAll(target); rmErr != nil {
			p.logger().Warn("removing venv entry",
				slog.String("path", target), slog.String("error", rmErr.Error()))
		}
	}
}

// listContents renders the venv directory listing for diagnostics.
func (p *Provisioner) listContents() string {
	entries, err := os.ReadDir(p.Path)
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}

	if len(entries) == 0 {
		return "(empty)"
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return strings.Join(names, ", ")
}

// env returns the process environment additions that point uv and maturin
// at the managed venv.
func (p *Provisioner) env() []string {
	return []string{
		"VIRTUAL_ENV=" + p.Path,
		"PATH=" + filepath.Join(p.Path, "bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}
