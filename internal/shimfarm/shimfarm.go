// Package shimfarm materializes the PATH-shadowing shim directory that
// injects the exec shim into every process of an instrumented build.
//
// Injection works by visibility, not modification: the farm directory holds
// one symlink per executable name reachable on the build's PATH, each
// pointing at the shim binary, and the farm is prepended to the child
// build's PATH. Any path-searching exec in the build tree lands on a farm
// link first, runs the shim, and the shim forwards past the farm to the
// executable it shadows.
package shimfarm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"buildlogger/internal/guard"
	"buildlogger/internal/logsink"
)

// binOnlyVar enables the shims' native-binary-only gate.
const binOnlyVar = "BUILD_LOGGER_BIN_ONLY"

// Build populates dir with one symlink per executable name found on
// searchPath, each pointing at shimBin. Earlier search elements win name
// clashes, matching lookup order. Returns the number of links created.
func Build(dir, shimBin, searchPath string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating shim directory: %w", err)
	}

	created := 0
	seen := make(map[string]bool)
	for _, element := range strings.Split(searchPath, ":") {
		if element == "" {
			// An empty field means the current directory, which changes
			// per process and cannot be snapshot into links.
			continue
		}

		entries, err := os.ReadDir(element)
		if err != nil {
			// Unreadable PATH elements are normal; the real lookup skips
			// them the same way.
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if seen[name] || entry.IsDir() {
				continue
			}
			if unix.Access(filepath.Join(element, name), unix.X_OK) != nil {
				continue
			}
			if err := os.Symlink(shimBin, filepath.Join(dir, name)); err != nil {
				return created, fmt.Errorf("linking shim for %q: %w", name, err)
			}
			seen[name] = true
			created++
		}
	}
	return created, nil
}

// ChildEnv returns the environment for the instrumented build command: base
// with the farm prepended to PATH and the injection and capture variables
// set.
func ChildEnv(base []string, dir, captureFile string, binOnly bool) []string {
	// A base without PATH yields the farm alone; a trailing colon would put
	// the current directory on the child's search path.
	childPath := dir
	if basePath := getEnv(base, "PATH"); basePath != "" {
		childPath += ":" + basePath
	}
	env := setEnv(base, "PATH", childPath)
	env = setEnv(env, guard.ShimDirVar, dir)
	env = setEnv(env, logsink.FileVar, captureFile)
	if binOnly {
		env = setEnv(env, binOnlyVar, "1")
	}
	return env
}

func getEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
