package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		callCount.Add(1)
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("app.py")

	// Wait for debounce to fire.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "app.py", lastPath.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(string) {
		callCount.Add(1)
	})
	defer d.Stop()

	// Fire 10 rapid events — should coalesce into 1.
	for i := 0; i < 10; i++ {
		d.Trigger("worker.py")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("first.py")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("second.py")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("third.py")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.py", lastPath.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(string) {
		callCount.Add(1)
	})

	d.Trigger("app.py")
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

// ---------------------------------------------------------------------------
// IgnoreSet
// ---------------------------------------------------------------------------

func TestIgnoreSet_MatchDir(t *testing.T) {
	s := DefaultIgnores()

	assert.True(t, s.MatchDir("target"))
	assert.True(t, s.MatchDir("__pycache__"))
	assert.True(t, s.MatchDir(".venv"))
	assert.False(t, s.MatchDir("src"))
}

func TestIgnoreSet_MatchPath(t *testing.T) {
	s := DefaultIgnores()

	tests := []struct {
		path string
		want bool
	}{
		{"/ws/sdk-core/target/debug/build.rs", true},
		{"/ws/blueprint/__pycache__/app.cpython-312.pyc", true},
		{"/ws/.venv/bin/python", true},
		{"/ws/blueprint/src/handlers.pyc", true},
		{"/ws/blueprint/src/handlers.py", false},
		{"/ws/sdk-python/rust/lib.rs", false},
		{"/ws/sdk-core/Cargo.toml", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.MatchPath(tt.path))
		})
	}
}

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	ignore := DefaultIgnores()

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"python write", "app.py", fsnotify.Write, true},
		{"rust write", "lib.rs", fsnotify.Write, true},
		{"create event", "new.py", fsnotify.Create, true},
		{"remove event", "old.py", fsnotify.Remove, true},
		{"rename event", "renamed.py", fsnotify.Rename, true},
		{"hidden file", ".hidden", fsnotify.Write, false},
		{"swap file", "app.py.swp", fsnotify.Write, false},
		{"backup tilde", "app.py~", fsnotify.Write, false},
		{"emacs hash", "#app.py#", fsnotify.Write, false},
		{"zero op", "app.py", 0, false},
		{"chmod only", "app.py", fsnotify.Chmod, false},
		{"bytecode", "app.pyc", fsnotify.Write, false},
		{"build artifact", "/ws/target/debug/out.o", fsnotify.Write, false},
		{"pycache", "/ws/src/__pycache__/app.pyc", fsnotify.Write, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: tt.path, Op: tt.op}
			assert.Equal(t, tt.want, isRelevant(event, ignore))
		})
	}
}

// ---------------------------------------------------------------------------
// addPath
// ---------------------------------------------------------------------------

func TestAddPath_SkipsHiddenAndIgnoredDirs(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "handlers"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target", "debug"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "__pycache__"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print()"), 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addPath(watcher, dir, DefaultIgnores()))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "src")], "src should be watched")
	assert.True(t, watched[filepath.Join(dir, "src", "handlers")], "src/handlers should be watched")
	assert.False(t, watched[filepath.Join(dir, "target")], "target should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, "target", "debug")], "target/debug should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, "__pycache__")], "__pycache__ should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".git")], ".git should NOT be watched")
}

func TestAddPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(file, []byte("[package]"), 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addPath(watcher, file, DefaultIgnores()))
	assert.Contains(t, watcher.WatchList(), file)
}

func TestAddPath_NonExistent(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.Error(t, addPath(watcher, "/nonexistent/dir/12345", DefaultIgnores()))
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

func TestRun_InitialCycleAndShutdown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print()"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	var cycles atomic.Int32

	opts := DefaultOptions()
	opts.Paths = []string{dir}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string) error {
			cycles.Add(1)
			return nil
		})
	}()

	// Let the startup cycle complete.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, cycles.Load(), int32(1))

	// Cancel → should shut down gracefully.
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestRun_FileChangeTriggersOneCycle(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "handlers.py")
	require.NoError(t, os.WriteFile(source, []byte("a = 1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32

	opts := DefaultOptions()
	opts.Paths = []string{dir}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string) error {
			cycles.Add(1)
			return nil
		})
	}()

	// Wait for the startup cycle.
	time.Sleep(200 * time.Millisecond)
	initial := cycles.Load()

	require.NoError(t, os.WriteFile(source, []byte("a = 2"), 0o644))

	// Wait for debounce + processing.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, initial+1, cycles.Load(), "one change should trigger exactly one cycle")

	cancel()
	<-done
}

func TestRun_IgnoredFileTriggersNothing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("a = 1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32

	opts := DefaultOptions()
	opts.Paths = []string{dir}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string) error {
			cycles.Add(1)
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	initial := cycles.Load()

	// Bytecode files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.pyc"), []byte{0x01}, 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, initial, cycles.Load(), "ignored change should trigger no cycle")

	cancel()
	<-done
}

func TestRun_CycleErrorDoesNotStopLoop(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(source, []byte("a = 1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32

	opts := DefaultOptions()
	opts.Paths = []string{dir}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string) error {
			cycles.Add(1)
			return fmt.Errorf("build failed")
		})
	}()

	time.Sleep(200 * time.Millisecond)
	initial := cycles.Load()
	require.GreaterOrEqual(t, initial, int32(1))

	// The loop must survive the failed cycle and process the next change.
	require.NoError(t, os.WriteFile(source, []byte("a = 2"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Greater(t, cycles.Load(), initial)

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_NonExistentPath(t *testing.T) {
	opts := DefaultOptions()
	opts.Paths = []string{"/nonexistent/path/12345"}
	opts.Out = io.Discard

	err := Run(context.Background(), opts, func(context.Context, string) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching")
}

// ---------------------------------------------------------------------------
// DefaultOptions
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Debounce)
	assert.NotNil(t, opts.Ignore)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}
