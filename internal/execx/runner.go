// Package execx runs external commands through a small Runner interface so
// that provisioning and build code can be exercised in tests with fakes.
package execx

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes a single external command invocation.
type Cmd struct {
	// Name is the program to run, resolved against PATH.
	Name string

	// Args are the program arguments, excluding the program name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// String renders the command for diagnostics and logging.
func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}

	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes external commands.
type Runner interface {
	// Run executes cmd, streaming its output, and returns an error on a
	// non-zero exit.
	Run(ctx context.Context, cmd Cmd) error

	// Output executes cmd and returns its combined output, trimmed.
	Output(ctx context.Context, cmd Cmd) (string, error)

	// LookPath reports where name resolves on PATH.
	LookPath(name string) (string, error)
}

// Local is the Runner used outside of tests. Command output is streamed
// to Out (stderr when nil).
type Local struct {
	Out io.Writer
}

var _ Runner = (*Local)(nil)

func (l *Local) out() io.Writer {
	if l.Out != nil {
		return l.Out
	}

	return os.Stderr
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, cmd Cmd) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = l.out()
	c.Stderr = l.out()

	if err := c.Run(); err != nil {
		return fmt.Errorf("running %q: %w", cmd.String(), err)
	}

	return nil
}

// Output implements Runner.
func (l *Local) Output(ctx context.Context, cmd Cmd) (string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	out, err := c.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("running %q: %w", cmd.String(), err)
	}

	return strings.TrimSpace(string(out)), nil
}

// LookPath implements Runner.
func (l *Local) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
