package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers match them with errors.Is; every operation that
// takes a sandbox identifier fails with ErrUnknownSandbox when it is absent.
var (
	ErrUnknownSandbox    = errors.New("unknown sandbox")
	ErrPathEscape        = errors.New("path escapes sandbox root")
	ErrSandboxCreation   = errors.New("sandbox creation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrRemoteUnavailable = errors.New("remote sandbox backend is not available")
)

// PathEscapeError reports a caller path whose resolved form lies outside
// the sandbox root.
type PathEscapeError struct {
	Root     string
	Path     string
	Resolved string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q resolves to %q, outside sandbox root %q", e.Path, e.Resolved, e.Root)
}

func (e *PathEscapeError) Unwrap() error { return ErrPathEscape }

// GitCommandError is returned when a git invocation exits non-zero.
// Args and Stderr are already scrubbed of credentials.
type GitCommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *GitCommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if e.TimedOut {
		msg = "timed out"
		if s := strings.TrimSpace(e.Stderr); s != "" {
			msg += ": " + s
		}
	}
	if msg == "" {
		return fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	}
	return fmt.Sprintf("git %s: exit status %d: %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}
