package interpose

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"buildlogger/internal/guard"
	"buildlogger/internal/logreader"
	"buildlogger/internal/logsink"
)

// stubExec replaces the real process-replacement call for one test and
// records what would have been exec'd.
type stubExec struct {
	path string
	argv []string
	envp []string
	// capturedLog is the state of the capture file at the moment the exec
	// fired, to verify log-before-exec ordering.
	capturedLog []byte
}

func installStubExec(t *testing.T, captureFile string, result error) *stubExec {
	t.Helper()
	stub := &stubExec{}
	orig := sysExec
	sysExec = func(path string, argv []string, envp []string) error {
		stub.path = path
		stub.argv = argv
		stub.envp = envp
		if captureFile != "" {
			stub.capturedLog, _ = os.ReadFile(captureFile)
		}
		return result
	}
	t.Cleanup(func() { sysExec = orig })
	return stub
}

func writeExecutable(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func elfIdent() []byte {
	return append([]byte("\x7fELF"), make([]byte, 12)...)
}

func TestExecvp_LogsBeforeForwarding(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "cc", elfIdent())

	captureFile := filepath.Join(t.TempDir(), "capture.jsonl")
	t.Setenv("PATH", binDir)
	t.Setenv(logsink.FileVar, captureFile)

	stub := installStubExec(t, captureFile, unix.EACCES)

	err := Execvp("cc", []string{"cc", "-c", "main.c"})
	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("Execvp() error = %v, want the forwarded errno", err)
	}

	if stub.path != filepath.Join(binDir, "cc") {
		t.Errorf("forwarded path = %q, want %q", stub.path, filepath.Join(binDir, "cc"))
	}
	if len(stub.argv) != 3 || stub.argv[0] != "cc" || stub.argv[2] != "main.c" {
		t.Errorf("forwarded argv = %v, want original vector unchanged", stub.argv)
	}

	// The entry must already have been durable when the exec fired.
	if len(stub.capturedLog) == 0 {
		t.Fatal("capture log was empty at exec time")
	}
	result, err := logreader.ReadFile(captureFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Invocations) != 1 {
		t.Fatalf("got %d captured invocations, want 1", len(result.Invocations))
	}
	inv := result.Invocations[0]
	want := []string{"cc", "cc", "-c", "main.c"}
	if len(inv.Args) != len(want) {
		t.Fatalf("captured args = %v, want %v", inv.Args, want)
	}
	for i := range want {
		if inv.Args[i] != want[i] {
			t.Errorf("captured args[%d] = %q, want %q", i, inv.Args[i], want[i])
		}
	}
}

func TestExecvp_ResolutionFailureIsENOENT(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	t.Setenv(logsink.FileVar, "x") // registers restore
	os.Unsetenv(logsink.FileVar)

	installStubExec(t, "", nil)

	err := Execvp("no-such-compiler", []string{"no-such-compiler"})
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("Execvp() error = %v, want ENOENT", err)
	}
}

func TestExecvp_SkipsShimDirectory(t *testing.T) {
	shimDir := t.TempDir()
	realDir := t.TempDir()
	writeExecutable(t, shimDir, "cc", elfIdent())
	realPath := writeExecutable(t, realDir, "cc", elfIdent())

	t.Setenv("PATH", shimDir+":"+realDir)
	t.Setenv(guard.ShimDirVar, shimDir)
	t.Setenv(logsink.FileVar, "x")
	os.Unsetenv(logsink.FileVar)

	stub := installStubExec(t, "", unix.EACCES)

	_ = Execvp("cc", []string{"cc"})
	if stub.path != realPath {
		t.Errorf("forwarded path = %q, want the post-shim executable %q", stub.path, realPath)
	}
}

func TestExecvp_LddDropsInjectionBeforeForwarding(t *testing.T) {
	shimDir := t.TempDir()
	binDir := t.TempDir()
	writeExecutable(t, binDir, "ldd", []byte("#!/bin/sh\n"))

	t.Setenv("PATH", shimDir+":"+binDir)
	t.Setenv(guard.ShimDirVar, shimDir)
	t.Setenv(logsink.FileVar, "x")
	os.Unsetenv(logsink.FileVar)

	var shimVarAtExec string
	orig := sysExec
	sysExec = func(path string, argv []string, envp []string) error {
		shimVarAtExec = os.Getenv(guard.ShimDirVar)
		return unix.EACCES
	}
	t.Cleanup(func() { sysExec = orig })

	_ = Execvp("ldd", []string{"ldd", "/bin/true"})
	if shimVarAtExec != "" {
		t.Errorf("%s = %q at exec time, want unset", guard.ShimDirVar, shimVarAtExec)
	}
}

func TestExecvp_OtherCommandsKeepInjection(t *testing.T) {
	shimDir := t.TempDir()
	binDir := t.TempDir()
	writeExecutable(t, binDir, "gcc", elfIdent())

	t.Setenv("PATH", shimDir+":"+binDir)
	t.Setenv(guard.ShimDirVar, shimDir)
	t.Setenv(logsink.FileVar, "x")
	os.Unsetenv(logsink.FileVar)

	installStubExec(t, "", unix.EACCES)

	_ = Execvp("gcc", []string{"gcc"})
	if got := os.Getenv(guard.ShimDirVar); got != shimDir {
		t.Errorf("%s = %q after non-ldd exec, want %q", guard.ShimDirVar, got, shimDir)
	}
}

func TestExecve_ForwardsEnvpVerbatim(t *testing.T) {
	t.Setenv(logsink.FileVar, "x")
	os.Unsetenv(logsink.FileVar)

	stub := installStubExec(t, "", unix.EACCES)

	envp := []string{"A=1", "B=2"}
	_ = Execve("/usr/bin/true", []string{"true"}, envp)

	if stub.path != "/usr/bin/true" {
		t.Errorf("forwarded path = %q, want /usr/bin/true", stub.path)
	}
	if len(stub.envp) != 2 || stub.envp[0] != "A=1" || stub.envp[1] != "B=2" {
		t.Errorf("forwarded envp = %v, want %v", stub.envp, envp)
	}
}

func TestExecv_NoPathSearch(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "cc", elfIdent())
	t.Setenv("PATH", binDir)
	t.Setenv(logsink.FileVar, "x")
	os.Unsetenv(logsink.FileVar)

	stub := installStubExec(t, "", unix.ENOENT)

	// A bare token is not searched by execv; the kernel sees it as a
	// relative path and the shim forwards it unchanged.
	_ = Execv("cc", []string{"cc"})
	if stub.path != "cc" {
		t.Errorf("forwarded path = %q, want the unsearched token", stub.path)
	}
}

func TestExecvp_OverlongVectorSkipsLogOnly(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "cc", elfIdent())

	captureFile := filepath.Join(t.TempDir(), "capture.jsonl")
	t.Setenv("PATH", binDir)
	t.Setenv(logsink.FileVar, captureFile)

	stub := installStubExec(t, "", unix.EACCES)

	argv := make([]string, 4096)
	argv[0] = "cc"
	err := Execvp("cc", argv)
	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("Execvp() error = %v, want the forwarded errno", err)
	}
	if stub.path == "" {
		t.Fatal("real call did not execute")
	}

	result, err := logreader.ReadFile(captureFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Invocations) != 0 {
		t.Errorf("overlong vector was logged: %d entries", len(result.Invocations))
	}
}

func TestExecvp_BinOnlyGateSuppressesScripts(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "wrapper", []byte("#!/bin/sh\nexec cc \"$@\"\n"))

	captureFile := filepath.Join(t.TempDir(), "capture.jsonl")
	t.Setenv("PATH", binDir)
	t.Setenv(logsink.FileVar, captureFile)
	t.Setenv("BUILD_LOGGER_BIN_ONLY", "1")

	installStubExec(t, "", unix.EACCES)

	_ = Execvp("wrapper", []string{"wrapper", "-c", "a.c"})

	result, err := logreader.ReadFile(captureFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Invocations) != 0 {
		t.Errorf("script invocation was logged under bin-only gate")
	}
}
