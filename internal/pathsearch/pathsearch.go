// Package pathsearch replicates the POSIX execvp search-path algorithm.
//
// The logging pipeline reasons about the file an exec call is about to run,
// so resolution here must choose exactly the file the forwarded call will
// choose: same element order, same "empty field means current directory"
// rule, same executability probe.
package pathsearch

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultPath is the search list used when the PATH environment variable is
// unset, matching the libc _PATH_DEFPATH fallback.
const DefaultPath = "/usr/bin:/bin"

// maxCandidateLen bounds generated candidate paths. Candidates that would
// exceed it are skipped, not reported as errors.
const maxCandidateLen = unix.PathMax

// Searcher resolves command tokens against a PATH-style search list.
type Searcher struct {
	path     string
	skipDirs map[string]struct{}
}

// New returns a Searcher over the given colon-separated search list.
// Elements equal to any of skipDirs are excluded from the search; the shim
// passes its own directory here so resolution lands on the executable the
// shim shadows.
func New(path string, skipDirs ...string) *Searcher {
	s := &Searcher{path: path}
	if len(skipDirs) > 0 {
		s.skipDirs = make(map[string]struct{}, len(skipDirs))
		for _, dir := range skipDirs {
			s.skipDirs[dir] = struct{}{}
		}
	}
	return s
}

// FromEnv returns a Searcher over the process's PATH environment variable,
// falling back to DefaultPath when PATH is unset.
func FromEnv(skipDirs ...string) *Searcher {
	path, ok := os.LookupEnv("PATH")
	if !ok {
		path = DefaultPath
	}
	return New(path, skipDirs...)
}

// dirs expands the search list into probe directories: empty elements
// (leading, trailing, or consecutive colons) denote the current directory.
func (s *Searcher) dirs() []string {
	fields := strings.Split(s.path, ":")
	dirs := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, skip := s.skipDirs[field]; skip {
			continue
		}
		if field == "" {
			field = "."
		}
		dirs = append(dirs, field)
	}
	return dirs
}

// Resolve returns the path the forwarded exec call should run for command.
// A command containing a path separator resolves to itself. Otherwise each
// search directory is probed in order and the first candidate executable by
// the current process wins. Failure is reported as ENOENT.
func (s *Searcher) Resolve(command string) (string, error) {
	if strings.ContainsRune(command, '/') {
		return command, nil
	}
	for _, dir := range s.dirs() {
		candidate := dir + "/" + command
		if len(candidate) >= maxCandidateLen {
			continue
		}
		if unix.Access(candidate, unix.X_OK) != nil {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%s: %w", command, unix.ENOENT)
}

// Open resolves command and opens the resolved file for reading. Unlike
// Resolve, search candidates that pass the executability probe but fail to
// open are skipped in favor of later elements, so the returned handle always
// reads the file the probe accepted.
func (s *Searcher) Open(command string) (*os.File, error) {
	if strings.ContainsRune(command, '/') {
		return os.Open(command)
	}
	for _, dir := range s.dirs() {
		candidate := dir + "/" + command
		if len(candidate) >= maxCandidateLen {
			continue
		}
		if unix.Access(candidate, unix.X_OK) != nil {
			continue
		}
		if f, err := os.Open(candidate); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", command, unix.ENOENT)
}
