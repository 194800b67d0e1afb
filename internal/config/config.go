// Package config holds the build-logger driver's command-line and
// environment configuration.
package config

import (
	"fmt"
	"strings"
)

// CustomAttribute is a named expression evaluated against each captured
// invocation when exporting spans.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed command-line configuration.
type Config struct {
	// Command is the build command to run under capture.
	Command string
	// Args are the arguments to pass to the build command.
	Args []string
	// OutputFile is the capture log path; empty selects the default in the
	// working directory.
	OutputFile string
	// BinOnly enables the native-binary-only logging gate in the shims.
	BinOnly bool
	// ExportSpans enables OTLP span export of the capture after the build.
	ExportSpans bool
	// TraceID is an expression producing the trace ID for exported spans.
	TraceID string
	// ParentID is an expression producing the parent span ID.
	ParentID string
	// CustomAttributes are extra span attributes evaluated per invocation.
	CustomAttributes []CustomAttribute
}

// ParseArgs parses command-line arguments and returns a Config.
// Expected format:
//
//	build-logger [-o <file>] [-b] [-e] [-t <expr>] [-p <expr>] [-a name=expr]... -- <command> [args...]
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	programName := args[0]
	cfg := &Config{}

	cmdStart := -1
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			cmdStart = i + 1
			break
		}

		switch arg {
		case "-o", "--output":
			value, err := flagValue(args, i, arg)
			if err != nil {
				return nil, err
			}
			cfg.OutputFile = value
			i++
		case "-b", "--bin-only":
			cfg.BinOnly = true
		case "-e", "--export-spans":
			cfg.ExportSpans = true
		case "-t", "--trace-id":
			value, err := flagValue(args, i, arg)
			if err != nil {
				return nil, err
			}
			cfg.TraceID = value
			i++
		case "-p", "--parent-id":
			value, err := flagValue(args, i, arg)
			if err != nil {
				return nil, err
			}
			cfg.ParentID = value
			i++
		case "-a", "--attr":
			value, err := flagValue(args, i, arg)
			if err != nil {
				return nil, err
			}
			attr, err := parseCustomAttribute(value)
			if err != nil {
				return nil, err
			}
			cfg.CustomAttributes = append(cfg.CustomAttributes, attr)
			i++
		default:
			return nil, fmt.Errorf("unknown flag %q (arguments after -- are the build command)", arg)
		}
	}

	if cmdStart == -1 || cmdStart >= len(args) {
		return nil, fmt.Errorf("Usage: %s [-o <file>] [-b] [-e] [-t <expr>] [-p <expr>] [-a name=expr]... -- <command> [args...]\nExample: %s -b -- make -j8",
			programName, programName)
	}

	cmdArgs := args[cmdStart:]
	cfg.Command = cmdArgs[0]
	cfg.Args = cmdArgs[1:]

	return cfg, nil
}

// FullCommand returns the build command and all its arguments as a slice.
func (c *Config) FullCommand() []string {
	return append([]string{c.Command}, c.Args...)
}

func flagValue(args []string, i int, flag string) (string, error) {
	if i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", flag)
	}
	return args[i+1], nil
}

func parseCustomAttribute(value string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return CustomAttribute{}, fmt.Errorf("custom attribute must be name=expression, got %q", value)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}
