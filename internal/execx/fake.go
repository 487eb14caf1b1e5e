package execx

import (
	"context"
	"strings"
	"sync"
)

// Fake is a Runner for tests. It records every invocation and answers from
// canned results keyed by command prefix.
type Fake struct {
	mu sync.Mutex

	// Calls holds the string form of every command run, in order.
	Calls []string

	// Errors maps a command-string prefix to the error Run/Output returns
	// for matching commands.
	Errors map[string]error

	// Outputs maps a command-string prefix to the value Output returns.
	Outputs map[string]string

	// Missing lists program names LookPath reports as not found.
	Missing []string

	// OnRun, when set, is called after each Run with the command. It can
	// create filesystem side effects the code under test expects, e.g.
	// the venv activation marker.
	OnRun func(cmd Cmd)
}

var _ Runner = (*Fake)(nil)

func (f *Fake) record(cmd Cmd) string {
	s := cmd.String()

	f.mu.Lock()
	f.Calls = append(f.Calls, s)
	f.mu.Unlock()

	return s
}

func (f *Fake) errorFor(s string) error {
	for prefix, err := range f.Errors {
		if strings.HasPrefix(s, prefix) {
			return err
		}
	}

	return nil
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, cmd Cmd) error {
	s := f.record(cmd)

	if err := f.errorFor(s); err != nil {
		return err
	}

	if f.OnRun != nil {
		f.OnRun(cmd)
	}

	return nil
}

// Output implements Runner.
func (f *Fake) Output(_ context.Context, cmd Cmd) (string, error) {
	s := f.record(cmd)

	if err := f.errorFor(s); err != nil {
		return "", err
	}

	for prefix, out := range f.Outputs {
		if strings.HasPrefix(s, prefix) {
			return out, nil
		}
	}

	return "", nil
}

// LookPath implements Runner. Programs listed in Missing resolve to an
// error; everything else resolves to a fixed fake path.
func (f *Fake) LookPath(name string) (string, error) {
	for _, m := range f.Missing {
		if m == name {
			return "", &notFoundError{name: name}
		}
	}

	return "/usr/bin/" + name, nil
}

// CallsWithPrefix returns the recorded calls matching prefix.
func (f *Fake) CallsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string

	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}

	return out
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string {
	return "exec: " + e.name + ": executable file not found in $PATH"
}
