// Package record models a single captured exec invocation and its bounded
// argument marshalling.
package record

import (
	"errors"
	"os"
	"strings"
	"time"
)

// MaxLoggedArgs bounds the marshalled argument vector, program name
// included. The bound keeps per-call marshalling allocation fixed;
// invocations exceeding it are not logged, but the intercepted call itself
// is unaffected.
const MaxLoggedArgs = 2048

// ErrTooManyArgs is returned when an invocation's argument vector exceeds
// MaxLoggedArgs.
var ErrTooManyArgs = errors.New("argument vector exceeds marshalling bound")

// MaxLoggedEnv bounds the environment snapshot recorded with an invocation.
// Unlike the argument bound, overflow truncates the snapshot rather than
// dropping the entry: a partial environment still answers most expression
// queries.
const MaxLoggedEnv = 1024

// Invocation is one captured exec call.
type Invocation struct {
	// Timestamp is the wall-clock time of interception, in Unix nanoseconds.
	Timestamp int64 `json:"ts"`
	// Pid and Ppid identify the intercepted process and its parent.
	Pid  int `json:"pid"`
	Ppid int `json:"ppid"`
	// Dir is the working directory of the intercepted call.
	Dir string `json:"dir"`
	// Args holds the command token first, then the caller's full argument
	// vector. Args[1] duplicates the command token in the common case where
	// the caller passed its program name as argv[0], but the two can differ.
	Args []string `json:"args"`
	// Env is the intercepted process's environment at the moment of the
	// call, truncated at MaxLoggedEnv variables.
	Env map[string]string `json:"env,omitempty"`
}

// MarshalArgs builds the reported argument list: the command token followed
// by the caller's argument vector. It refuses vectors beyond MaxLoggedArgs
// instead of growing.
func MarshalArgs(command string, argv []string) ([]string, error) {
	if 1+len(argv) > MaxLoggedArgs {
		return nil, ErrTooManyArgs
	}
	out := make([]string, 0, 1+len(argv))
	out = append(out, command)
	return append(out, argv...), nil
}

// MarshalEnv converts KEY=VALUE pairs into the recorded environment
// snapshot, keeping at most MaxLoggedEnv variables in environ order.
// Malformed pairs without '=' are dropped.
func MarshalEnv(environ []string) map[string]string {
	env := make(map[string]string, min(len(environ), MaxLoggedEnv))
	for _, kv := range environ {
		if len(env) >= MaxLoggedEnv {
			break
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// New captures an Invocation of command for the current process.
func New(command string, argv []string) (*Invocation, error) {
	args, err := MarshalArgs(command, argv)
	if err != nil {
		return nil, err
	}

	dir, err := os.Getwd()
	if err != nil {
		dir = ""
	}

	return &Invocation{
		Timestamp: time.Now().UnixNano(),
		Pid:       os.Getpid(),
		Ppid:      os.Getppid(),
		Dir:       dir,
		Args:      args,
		Env:       MarshalEnv(os.Environ()),
	}, nil
}

// Command returns the invocation's program token.
func (inv *Invocation) Command() string {
	if len(inv.Args) == 0 {
		return ""
	}
	return inv.Args[0]
}

// Cmdline returns the full command line as a single string.
func (inv *Invocation) Cmdline() string {
	return strings.Join(inv.Args, " ")
}

// Time returns the interception time.
func (inv *Invocation) Time() time.Time {
	return time.Unix(0, inv.Timestamp)
}
