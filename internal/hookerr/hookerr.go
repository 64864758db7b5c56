// Package hookerr is the error taxonomy of a hook run and how each kind is
// reported to the operator.
package hookerr

import (
	"errors"
	"fmt"
	"io"
)

// ExitCode is the process exit code for every reported error.
const ExitCode = 2

// Kind classifies an error for reporting.
type Kind int

const (
	// Fatal is an unexpected failure at any stage, including bad input.
	Fatal Kind = iota
	// Warning is a recoverable, operator-visible problem that still stops
	// the run before dispatch.
	Warning
	// Subprocess is an external tool that exited non-zero.
	Subprocess
)

func (k Kind) String() string {
	switch k {
	case Warning:
		return "warning"
	case Subprocess:
		return "subprocess"
	default:
		return "fatal"
	}
}

// Error is a failure tagged with where it happened.
type Error struct {
	Kind    Kind
	Context string
	Err     error

	// Subprocess only.
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *Error) Error() string {
	switch e.Kind {
	case Subprocess:
		return fmt.Sprintf("%s: command %q failed with exit code %d", e.Context, e.Command, e.ExitCode)
	default:
		if e.Err == nil {
			return e.Context
		}
		return fmt.Sprintf("%s: %v", e.Context, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewFatal tags err as fatal.
func NewFatal(context string, err error) *Error {
	return &Error{Kind: Fatal, Context: context, Err: err}
}

// NewWarning tags err as a warning.
func NewWarning(context string, err error) *Error {
	return &Error{Kind: Warning, Context: context, Err: err}
}

// NewSubprocess records a command that exited non-zero.
func NewSubprocess(context, command string, exitCode int, stdout, stderr string) *Error {
	return &Error{
		Kind:     Subprocess,
		Context:  context,
		Command:  command,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Report writes err to w in the operator format and returns the exit code.
// A nil error reports nothing and returns 0. Untagged errors report as fatal
// in context "main".
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var he *Error
	if !errors.As(err, &he) {
		he = NewFatal("main", err)
	}

	switch he.Kind {
	case Warning:
		fmt.Fprintf(w, "WARNING [%s]: %v\n", he.Context, he.Err)
	case Subprocess:
		fmt.Fprintf(w, "ERROR [%s]: Command failed with exit code %d\n", he.Context, he.ExitCode)
		if he.Stdout != "" {
			fmt.Fprintln(w, "STDOUT:")
			fmt.Fprintln(w, he.Stdout)
		}
		if he.Stderr != "" {
			fmt.Fprintln(w, "STDERR:")
			fmt.Fprintln(w, he.Stderr)
		}
	default:
		fmt.Fprintf(w, "FATAL ERROR [%s]: %v\n", he.Context, he.Err)
	}
	return ExitCode
}
