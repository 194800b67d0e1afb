// Package gate decides whether an intercepted invocation is forwarded to
// the capture log.
//
// The gate exists to suppress wrapper shell scripts invoked as build steps
// while still capturing every compiler, assembler and linker run, all of
// which are native binaries. Ambiguity resolves toward capturing; a missed
// build action cannot be reconstructed later.
package gate

import (
	"github.com/caarlos0/env/v11"

	"buildlogger/internal/elfsniff"
	"buildlogger/internal/pathsearch"
)

// binOnlyFlag is the recognized value of the gate variable; anything else
// (including absence) means "log everything".
const binOnlyFlag = "1"

// Config is the gate's environment switch.
type Config struct {
	// BinOnly restricts capture to native-binary invocations when set to "1".
	BinOnly string `env:"BUILD_LOGGER_BIN_ONLY" envDefault:""`
}

// ShouldLog reports whether the invocation of command should be recorded.
// The environment is consulted on every call; the gate keeps no state.
func ShouldLog(command string, search *pathsearch.Searcher) bool {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return true
	}
	if cfg.BinOnly != binOnlyFlag {
		return true
	}

	if command == "" {
		return false
	}

	f, err := search.Open(command)
	if err != nil {
		// Can't open the candidate: unclassifiable programs are captured
		// rather than dropped.
		return true
	}
	defer f.Close()

	return elfsniff.Sniff(f) != elfsniff.NotBinary
}
