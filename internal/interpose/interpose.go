// Package interpose provides the exec-family interception entry points.
//
// Each entry point mirrors the libc call it shadows: it records the
// invocation (best effort, strictly before the exec, since a successful exec
// never returns), prepares the child environment, resolves the real
// executable past the shim directory, and replaces the process image. Every
// returned error means the image was not replaced; on success control does
// not come back.
//
// Logging failures of any kind are absorbed: they must not change the
// observable behavior of the intercepted call.
package interpose

import (
	"os"

	"golang.org/x/sys/unix"

	"buildlogger/internal/gate"
	"buildlogger/internal/guard"
	"buildlogger/internal/logsink"
	"buildlogger/internal/pathsearch"
	"buildlogger/internal/record"
)

// sysExec is the process-replacement call; swapped out in tests.
var sysExec = unix.Exec

// Execv replaces the process image with path, passing argv and the current
// environment. No search-path lookup is performed on path.
func Execv(path string, argv []string) error {
	tryLog(path, argv, realSearcher())
	guard.PrepareChildEnv(path)
	return sysExec(path, argv, os.Environ())
}

// Execve replaces the process image with path, passing argv and envp
// verbatim. The recursion guard still mutates only the current process's
// environment; envp is forwarded untouched.
func Execve(path string, argv []string, envp []string) error {
	tryLog(path, argv, realSearcher())
	guard.PrepareChildEnv(path)
	return sysExec(path, argv, envp)
}

// Execvp searches the PATH environment variable for file, then replaces the
// process image with the current environment. The shim directory is skipped
// during resolution so the forwarded call reaches the executable the shim
// shadows. Resolution failure is reported as ENOENT, the conventional
// "command not found" signal; shim callers exit 127 on it.
//
// Unlike libc execvp there is no /bin/sh retry on ENOEXEC: the builds this
// shim targets run scripts through their interpreters, and the kernel's
// shebang handling covers the rest.
func Execvp(file string, argv []string) error {
	search := realSearcher()
	tryLog(file, argv, search)
	guard.PrepareChildEnv(file)

	path, err := search.Resolve(file)
	if err != nil {
		return unix.ENOENT
	}
	return sysExec(path, argv, os.Environ())
}

// Execvpe behaves like Execvp but passes envp to the new image. Resolution
// uses the calling process's PATH, as libc does, not a PATH found in envp.
func Execvpe(file string, argv []string, envp []string) error {
	search := realSearcher()
	tryLog(file, argv, search)
	guard.PrepareChildEnv(file)

	path, err := search.Resolve(file)
	if err != nil {
		return unix.ENOENT
	}
	return sysExec(path, argv, envp)
}

// realSearcher resolves against the process's PATH with the shim directory
// skipped: the search space "after" this shim, where the genuine
// implementations live.
func realSearcher() *pathsearch.Searcher {
	if dir := os.Getenv(guard.ShimDirVar); dir != "" {
		return pathsearch.FromEnv(dir)
	}
	return pathsearch.FromEnv()
}

// tryLog records the invocation when the gate accepts it. It runs before
// the forwarding step and never propagates failure.
func tryLog(command string, argv []string, search *pathsearch.Searcher) {
	if !gate.ShouldLog(command, search) {
		return
	}

	inv, err := record.New(command, argv)
	if err != nil {
		// Marshalling bound exceeded: skip the entry, never the call.
		return
	}

	sink, err := logsink.FromEnv()
	if err != nil {
		return
	}
	_ = sink.LogExec(inv)
}
