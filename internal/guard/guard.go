// Package guard keeps the exec shim from re-injecting itself into the
// dynamic-linking toolchain's own helper processes.
package guard

import (
	"os"
	"strings"
)

// lddName is the dependency-lister helper that must run uninjected: it
// launches its target under the loader, and an injected loader environment
// recurses without bound.
const lddName = "ldd"

// ShimDirVar names the shim directory and marks injection as active.
// Children launched while it is set (and while the directory it names leads
// PATH) run through the shim.
const ShimDirVar = "BUILD_LOGGER_SHIM_DIR"

// TriggersRecursion reports whether the raw command token names the
// recursion-triggering helper, either as the whole token or as the final
// path segment.
func TriggersRecursion(command string) bool {
	return command == lddName || strings.HasSuffix(command, "/"+lddName)
}

// PrepareChildEnv disables injection for the current process and its future
// children when the command token triggers recursion. Other tokens leave the
// environment untouched. The mutation is process-global and therefore not
// safe against concurrent intercepted calls in other threads.
func PrepareChildEnv(command string) {
	if TriggersRecursion(command) {
		Disable()
	}
}

// Disable removes the injection environment from the current process: it
// unsets the shim directory variable and strips the shim directory from
// PATH. The caller's own environment (the parent that launched this
// process) is unaffected.
func Disable() {
	shimDir := os.Getenv(ShimDirVar)
	os.Unsetenv(ShimDirVar)
	if shimDir == "" {
		return
	}
	if path, ok := os.LookupEnv("PATH"); ok {
		os.Setenv("PATH", StripDir(path, shimDir))
	}
}

// StripDir returns the colon-separated list with every element equal to dir
// removed.
func StripDir(path, dir string) string {
	fields := strings.Split(path, ":")
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		if field != dir {
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, ":")
}
