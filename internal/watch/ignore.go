package watch

import (
	"path/filepath"
	"strings"
)

// IgnoreSet filters change events on build artifacts and caches so that the
// watcher only reacts to real source edits.
type IgnoreSet struct {
	dirNames map[string]struct{}
	suffixes []string
}

// DefaultIgnores returns the ignore set for worker source trees: native
// build output, local virtual environments, and compiled python caches.
func DefaultIgnores() *IgnoreSet {
	return NewIgnoreSet(
		[]string{"target", ".venv", "__pycache__"},
		[]string{".pyc"},
	)
}

// NewIgnoreSet builds an IgnoreSet from directory names ignored at any
// depth and file suffixes ignored anywhere.
func NewIgnoreSet(dirNames, suffixes []string) *IgnoreSet {
	set := &IgnoreSet{
		dirNames: make(map[string]struct{}, len(dirNames)),
		suffixes: suffixes,
	}

	for _, d := range dirNames {
		set.dirNames[d] = struct{}{}
	}

	return set
}

// MatchDir reports whether a directory with the given base name is ignored.
func (s *IgnoreSet) MatchDir(name string) bool {
	_, ok := s.dirNames[name]

	return ok
}

// MatchPath reports whether path is ignored: either one of its segments is
// an ignored directory name, or its base name carries an ignored suffix.
func (s *IgnoreSet) MatchPath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if s.MatchDir(seg) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}

	return false
}
