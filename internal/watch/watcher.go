// Package watch monitors the blueprint and SDK source trees and drives the
// rebuild-and-relaunch cycle of the live development workflow. Change events
// are filtered against an ignore set, debounced, and processed strictly one
// cycle at a time.
package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
)

// CycleFunc runs one rebuild-and-relaunch cycle. trigger names the path that
// caused the cycle, or "(initial)" for the startup run. A returned error
// aborts only that cycle; the watcher keeps waiting for the next change.
type CycleFunc func(ctx context.Context, trigger string) error

// Options configures the watch behaviour.
type Options struct {
	// Paths are the files and directories to monitor. Directories are
	// watched recursively; newly created subdirectories are picked up
	// live. Every path must exist.
	Paths []string

	// Ignore filters out events on build artifacts and caches.
	// Nil means DefaultIgnores().
	Ignore *IgnoreSet

	// Debounce is the quiet period before a change triggers a cycle.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status lines.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Ignore:   DefaultIgnores(),
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

var (
	okLabel  = color.New(color.FgGreen).SprintFunc()
	errLabel = color.New(color.FgRed).SprintFunc()
)

// Run starts the file watcher and blocks until the context is cancelled or a
// SIGINT/SIGTERM signal is received. An initial cycle runs before the first
// event. Cycles never overlap: each one completes before the next trigger is
// processed.
func Run(ctx context.Context, opts Options, cycle CycleFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnores()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range opts.Paths {
		if err := addPath(watcher, p, opts.Ignore); err != nil {
			return fmt.Errorf("watching %q: %w", p, err)
		}
	}

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %d path(s) (debounce=%s)\n",
		len(opts.Paths), opts.Debounce)

	// Startup cycle.
	doCycle(sigCtx, opts, cycle, "(initial)")

	// Debounced triggers feed a channel so cycles run in this loop, never
	// concurrently with event processing.
	triggers := make(chan string, 1)
	debouncer := NewDebouncer(opts.Debounce, func(path string) {
		select {
		case triggers <- path:
		default:
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case trigger := <-triggers:
			doCycle(sigCtx, opts, cycle, trigger)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event, opts.Ignore) {
				continue
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addPath(watcher, event.Name, opts.Ignore)
				}
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// doCycle executes a single rebuild-and-relaunch cycle and prints the status
// line. Cycle errors are reported, not propagated.
func doCycle(ctx context.Context, opts Options, cycle CycleFunc, trigger string) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now().Format("15:04:05")

	if err := cycle(ctx, trigger); err != nil {
		fmt.Fprintf(opts.Out, "[%s] %s → %s: %v\n", now, trigger, errLabel("ERROR"), err)
		return
	}

	fmt.Fprintf(opts.Out, "[%s] %s → %s\n", now, trigger, okLabel("OK"))
}

// addPath registers a file or directory with the watcher. Directories are
// walked recursively, skipping hidden and ignored subtrees.
func addPath(watcher *fsnotify.Watcher, path string, ignore *IgnoreSet) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return watcher.Add(path)
	}

	return filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			// Skip hidden and ignored directories (e.g., .git, target).
			if p != path && (strings.HasPrefix(d.Name(), ".") || ignore.MatchDir(d.Name())) {
				return filepath.SkipDir
			}

			return watcher.Add(p)
		}

		return nil
	})
}

// isRelevant filters out events on ignored, hidden, and editor temp files.
func isRelevant(event fsnotify.Event, ignore *IgnoreSet) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files and hidden files.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return !ignore.MatchPath(event.Name)
}
