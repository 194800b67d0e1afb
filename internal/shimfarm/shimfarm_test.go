package shimfarm

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildLinksExecutables(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "cc")
	writeExecutable(t, binDir, "ld")
	if err := os.WriteFile(filepath.Join(binDir, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	shim := writeExecutable(t, t.TempDir(), "exec-shim")
	farm := filepath.Join(t.TempDir(), "farm")

	n, err := Build(farm, shim, binDir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("created %d links, want 2", n)
	}
	for _, name := range []string{"cc", "ld"} {
		target, err := os.Readlink(filepath.Join(farm, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if target != shim {
			t.Errorf("%s links to %q, want %q", name, target, shim)
		}
	}
	if _, err := os.Lstat(filepath.Join(farm, "README")); !os.IsNotExist(err) {
		t.Error("non-executable README was farmed")
	}
}

func TestBuildFirstElementWinsClashes(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeExecutable(t, first, "cc")
	writeExecutable(t, second, "cc")
	writeExecutable(t, second, "make")

	shim := writeExecutable(t, t.TempDir(), "exec-shim")
	farm := filepath.Join(t.TempDir(), "farm")

	n, err := Build(farm, shim, first+":"+second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("created %d links, want 2", n)
	}
}

func TestBuildSkipsMissingElements(t *testing.T) {
	binDir := t.TempDir()
	writeExecutable(t, binDir, "cc")

	shim := writeExecutable(t, t.TempDir(), "exec-shim")
	farm := filepath.Join(t.TempDir(), "farm")

	n, err := Build(farm, shim, "/does/not/exist:"+binDir+":")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("created %d links, want 1", n)
	}
}

func TestChildEnv(t *testing.T) {
	base := []string{"HOME=/home/u", "PATH=/usr/bin:/bin"}
	env := ChildEnv(base, "/tmp/farm", "/tmp/capture.json", true)

	want := map[string]string{
		"PATH":                  "/tmp/farm:/usr/bin:/bin",
		"BUILD_LOGGER_SHIM_DIR": "/tmp/farm",
		"BUILD_LOGGER_FILE":     "/tmp/capture.json",
		"BUILD_LOGGER_BIN_ONLY": "1",
	}
	for key, value := range want {
		if !slices.Contains(env, key+"="+value) {
			t.Errorf("missing %s=%s in %v", key, value, env)
		}
	}
	if !slices.Contains(env, "HOME=/home/u") {
		t.Error("unrelated variable dropped")
	}
}

func TestChildEnvWithoutBasePath(t *testing.T) {
	env := ChildEnv([]string{"HOME=/home/u"}, "/tmp/farm", "/tmp/c.json", false)
	if !slices.Contains(env, "PATH=/tmp/farm") {
		t.Fatalf("PATH is not the farm alone: %v", env)
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") && strings.HasSuffix(kv, ":") {
			t.Fatalf("trailing empty PATH field adds the current directory: %s", kv)
		}
	}
}

func TestChildEnvWithoutBinOnly(t *testing.T) {
	env := ChildEnv([]string{"PATH=/bin"}, "/tmp/farm", "/tmp/c.json", false)
	for _, kv := range env {
		if strings.HasPrefix(kv, "BUILD_LOGGER_BIN_ONLY=") {
			t.Fatalf("bin-only flag set without being requested: %v", env)
		}
	}
}

func TestChildEnvReplacesExisting(t *testing.T) {
	base := []string{"BUILD_LOGGER_FILE=/old.json", "PATH=/bin"}
	env := ChildEnv(base, "/tmp/farm", "/new.json", false)

	count := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "BUILD_LOGGER_FILE=") {
			count++
			if kv != "BUILD_LOGGER_FILE=/new.json" {
				t.Errorf("stale capture file kept: %s", kv)
			}
		}
	}
	if count != 1 {
		t.Errorf("BUILD_LOGGER_FILE appears %d times, want 1", count)
	}
}
