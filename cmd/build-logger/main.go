// build-logger runs a build command under exec capture and reports the
// compiler and linker invocations it made, optionally exporting them as
// OpenTelemetry spans.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"buildlogger/internal/capture"
	"buildlogger/internal/config"
	"buildlogger/internal/logreader"
	"buildlogger/internal/otel"
	"buildlogger/internal/output"
	"buildlogger/internal/pathsearch"
	"buildlogger/internal/shimfarm"
)

// defaultCaptureFile is used when -o is not given.
const defaultCaptureFile = "build-capture.json"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// findShim locates the exec-shim binary: next to the driver first, then on
// PATH.
func findShim() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "exec-shim")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}

	path, err := pathsearch.FromEnv().Resolve("exec-shim")
	if err != nil {
		return "", fmt.Errorf("exec-shim binary not found next to %s or on PATH", os.Args[0])
	}
	return path, nil
}

// setupCapture truncates the capture file and builds the shim farm.
// Returns the farm directory and a cleanup function.
func setupCapture(captureFile string) (string, func(), error) {
	f, err := os.OpenFile(captureFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("creating capture file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", nil, err
	}

	shimBin, err := findShim()
	if err != nil {
		return "", nil, err
	}

	farm, err := os.MkdirTemp("", "build-logger-shims-")
	if err != nil {
		return "", nil, fmt.Errorf("creating shim directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(farm); err != nil {
			log.Printf("Error removing shim directory: %v", err)
		}
	}

	n, err := shimfarm.Build(farm, shimBin, os.Getenv("PATH"))
	if err != nil {
		cleanup()
		return "", nil, err
	}
	log.Printf("Shadowing %d executables from %s", n, farm)

	return farm, cleanup, nil
}

// executeCommand starts the build command under the instrumented environment
// and monitors it until completion. Returns when the command exits or a
// signal is received.
func executeCommand(cfg *config.Config, farm, captureFile string) error {
	//nolint:gosec // This is a capture tool - launching the build is its purpose
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = shimfarm.ChildEnv(os.Environ(), farm, captureFile, cfg.BinOnly)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting command: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	childDone := make(chan error, 1)
	go func() {
		childDone <- cmd.Wait()
	}()

	select {
	case <-sigCh:
		log.Println("Received signal, terminating...")
		_ = cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck // Best-effort graceful shutdown; Kill() follows
		time.Sleep(100 * time.Millisecond)
		_ = cmd.Process.Kill() //nolint:errcheck // Best-effort cleanup during shutdown
	case err := <-childDone:
		if err != nil {
			log.Printf("Build command exited with error: %v", err)
		}
	}

	return nil
}

// exportSpans pushes the captured invocations to the configured OTLP
// endpoint.
func exportSpans(cfg *config.Config, store *capture.Store) error {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(otelCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Printf("Error shutting down OTEL provider: %v", err)
		}
	}()

	formatter, err := output.NewSpanFormatter(
		tp.Tracer("build-logger"),
		cfg.CustomAttributes,
		cfg.TraceID,
		cfg.ParentID,
	)
	if err != nil {
		return fmt.Errorf("failed to create span formatter: %w", err)
	}

	return formatter.Export(context.Background(), store)
}

func run() error {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		return err
	}

	captureFile := cfg.OutputFile
	if captureFile == "" {
		captureFile = defaultCaptureFile
	}
	captureFile, err = filepath.Abs(captureFile)
	if err != nil {
		return err
	}

	farm, cleanupFarm, err := setupCapture(captureFile)
	if err != nil {
		return err
	}
	defer cleanupFarm()

	if err := executeCommand(cfg, farm, captureFile); err != nil {
		return err
	}

	result, err := logreader.ReadFile(captureFile)
	if err != nil {
		return fmt.Errorf("reading capture file: %w", err)
	}
	store := capture.FromResult(result)
	log.Printf("Captured %d invocations in %s", store.Len(), captureFile)

	if err := output.WriteSummary(os.Stdout, store); err != nil {
		return err
	}

	if cfg.ExportSpans {
		if err := exportSpans(cfg, store); err != nil {
			return err
		}
	}

	return nil
}
