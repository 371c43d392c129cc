package output

import (
	"errors"
	"strings"
)

// ExitCode is the process exit code this binary reports when run as a
// one-shot command (§6). Grounded in the teacher's own output/exit_code.go
// (a small int type plus a Determine* mapping function in this package),
// but the codes themselves are this spec's, not the teacher's: there is
// no "findings matched --fail-on" code here, because this server reports
// findings through the JSON-RPC envelope, never through process exit
// status.
type ExitCode int

const (
	// ExitCodeSuccess indicates the command ran to completion without error.
	ExitCodeSuccess ExitCode = 0

	// ExitCodeInvalidInvocation indicates a malformed command line: an
	// unknown command or flag, or a missing required flag.
	ExitCodeInvalidInvocation ExitCode = 2

	// ExitCodeInternalError indicates any other failure: a cache,
	// filesystem, or policy-loading error, or a panic recovered elsewhere
	// in the process.
	ExitCodeInternalError ExitCode = 3

	// ExitCodeTierDenied indicates the invocation itself (not a single
	// dispatched tool call) was refused outright for lacking a capability
	// the requested operation requires.
	ExitCodeTierDenied ExitCode = 4
)

// ErrorCoder is satisfied by an error that can classify itself against
// the dispatcher's closed error taxonomy (dispatcher.ErrorObject
// implements it) without this package importing dispatcher.
type ErrorCoder interface {
	ExitErrorCode() string
}

// InvalidInvocationError wraps a cobra-level command-line parsing error
// (unknown command, unknown flag, missing required flag) so
// DetermineExitCode can tell it apart from a runtime failure.
type InvalidInvocationError struct {
	Err error
}

func (e *InvalidInvocationError) Error() string { return e.Err.Error() }
func (e *InvalidInvocationError) Unwrap() error  { return e.Err }

// invocationErrorPrefixes are the message prefixes cobra's own flag/
// command parser produces; cobra has no typed error for "this was an
// invocation problem, not a RunE failure", so this is the same
// message-sniffing approach the original engine's CLI layer falls back to
// wherever a library doesn't expose a structured error.
var invocationErrorPrefixes = []string{
	"unknown command",
	"unknown flag:",
	"unknown shorthand flag:",
	"flag needs an argument:",
	"invalid argument",
	"required flag(s)",
}

// WrapInvocationError returns err wrapped as *InvalidInvocationError when
// its message matches a known cobra parse-error shape, or err unchanged
// otherwise.
func WrapInvocationError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, prefix := range invocationErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return &InvalidInvocationError{Err: err}
		}
	}
	return err
}

// DetermineExitCode maps a one-shot invocation's terminal error to the
// process exit code §6 names. nil maps to ExitCodeSuccess. An
// *InvalidInvocationError (see WrapInvocationError, applied in
// cmd.Execute) maps to ExitCodeInvalidInvocation. An error whose
// ExitErrorCode() reports "tier_denied" maps to ExitCodeTierDenied.
// Everything else — cache/filesystem/policy failures, dispatcher
// internal_error, a recovered panic — maps to ExitCodeInternalError.
func DetermineExitCode(err error) ExitCode {
	if err == nil {
		return ExitCodeSuccess
	}

	var invocation *InvalidInvocationError
	if errors.As(err, &invocation) {
		return ExitCodeInvalidInvocation
	}

	var coder ErrorCoder
	if errors.As(err, &coder) && coder.ExitErrorCode() == "tier_denied" {
		return ExitCodeTierDenied
	}

	return ExitCodeInternalError
}
