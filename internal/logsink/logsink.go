// Package logsink appends captured invocations to the shared capture log.
//
// The log is a JSON-lines file shared by every shim process in a build tree.
// Each entry is appended as a single write under an exclusive flock, so
// concurrently exec-ing processes interleave whole entries rather than
// bytes. O_SYNC keeps entries durable even when the writing process is
// replaced by its exec an instant later.
package logsink

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"golang.org/x/sys/unix"

	"buildlogger/internal/record"
)

// FileVar names the capture log in the environment of instrumented
// processes.
const FileVar = "BUILD_LOGGER_FILE"

// ErrNoCaptureFile is returned by FromEnv when no capture log is configured.
var ErrNoCaptureFile = errors.New("capture log file is not configured")

// Config locates the capture log from the environment.
type Config struct {
	File string `env:"BUILD_LOGGER_FILE" envDefault:""`
}

// Sink appends invocations to one capture log. The file is opened and
// locked per entry, never across calls; a Sink carries no state between
// intercepted execs.
type Sink struct {
	path string
}

// New returns a sink writing to the capture log at path.
func New(path string) *Sink {
	return &Sink{path: path}
}

// FromEnv returns a sink for the capture log named in the environment.
func FromEnv() (*Sink, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing capture log config: %w", err)
	}
	if cfg.File == "" {
		return nil, ErrNoCaptureFile
	}
	return New(cfg.File), nil
}

// LogExec durably records one invocation. Safe to call from any number of
// processes concurrently.
func (s *Sink) LogExec(inv *record.Invocation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening capture log: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking capture log: %w", err)
	}
	// The lock is released with the descriptor on close.

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to capture log: %w", err)
	}
	return nil
}
