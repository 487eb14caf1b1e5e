// Package supervisor owns the worker process lifecycle. It guarantees that
// at most one worker is active at a time: Start refuses to run a second
// instance, and Stop fully terminates the current one (SIGTERM, then SIGKILL
// after a grace period) before returning.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultGrace is how long Stop waits after SIGTERM before sending SIGKILL.
const DefaultGrace = 5 * time.Second

// ErrAlreadyRunning reports a Start while a worker is still active.
var ErrAlreadyRunning = errors.New("worker already running")

// Supervisor launches and terminates the worker process.
type Supervisor struct {
	// Program is the worker executable (e.g. the venv python interpreter).
	Program string

	// Args are the program arguments (e.g. the entry point script).
	Args []string

	// Dir is the working directory for the worker.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string

	// Grace is the SIGTERM-to-SIGKILL window. Zero means DefaultGrace.
	Grace time.Duration

	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger

	// Out receives the worker's stdout and stderr. Nil means the
	// supervisor process's own stderr.
	Out io.Writer

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{} // closed when the worker's Wait returns
	exitErr error         // valid once done is closed
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}

func (s *Supervisor) grace() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}

	return DefaultGrace
}

// Start launches a fresh worker process. It returns ErrAlreadyRunning if the
// previous instance has not been stopped.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running() {
		return ErrAlreadyRunning
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	out := s.Out
	if out == nil {
		out = os.Stderr
	}

	cmd := exec.Command(s.Program, s.Args...) //nolint:gosec
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching worker: %w", err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	s.exitErr = nil

	s.logger().Info("worker started", slog.Int("pid", cmd.Process.Pid))

	go func() {
		err := cmd.Wait()

		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()

		if err != nil {
			s.logger().Warn("worker exited", slog.String("error", err.Error()))
		} else {
			s.logger().Info("worker exited")
		}

		close(done)
	}()

	return nil
}

// Stop terminates the current worker, if any, and waits for it to exit.
// SIGTERM first; SIGKILL after the grace period. Stop is a no-op when no
// worker is active.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		// Already exited on its own.
		return nil
	default:
	}

	s.logger().Info("stopping worker", slog.Int("pid", cmd.Process.Pid))

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process may have exited between the check and the signal.
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.grace()):
	}

	s.logger().Warn("worker ignored SIGTERM, killing", slog.Int("pid", cmd.Process.Pid))

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing worker: %w", err)
	}

	<-done

	return nil
}

// Running reports whether a worker process is currently active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running()
}

func (s *Supervisor) running() bool {
	if s.cmd == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the worker exits or ctx is cancelled. On exit it returns
// the worker's error, if any; on cancellation the worker is stopped and
// ctx's error returned. Waiting with no active worker returns nil.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		s.mu.Lock()
		err := s.exitErr
		s.cmd, s.done = nil, nil
		s.mu.Unlock()

		return err
	case <-ctx.Done():
		if stopErr := s.Stop(); stopErr != nil {
			return stopErr
		}

		return ctx.Err()
	}
}

// ExitCode extracts the process exit code from a Wait error. It returns 0
// for nil and 1 for errors that carry no exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}
