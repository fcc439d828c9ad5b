package docsync

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound means the file being fingerprinted or read does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotSupported is returned by capabilities that are recognized but not implemented,
	// such as key-based remote authentication.
	ErrNotSupported = errors.New("not supported")

	// ErrConnectionLost means a remote channel closed or a read from it failed.
	ErrConnectionLost = errors.New("connection lost")

	// ErrAuthenticationFailed means the remote host rejected the configured credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrSessionUnavailable means a remote session could not be (re)established
	// within its retry budget.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrRemoteUnreachable means no ancestor of a destination directory could be found,
	// so the destination root itself is unreachable.
	ErrRemoteUnreachable = errors.New("remote unreachable")

	// ErrRemoteExecution is matched by every *RemoteExecError.
	ErrRemoteExecution = errors.New("remote execution failed")

	// ErrPathEscapes means a path does not lie beneath the root it was derived against.
	ErrPathEscapes = errors.New("path escapes its root")
)

// ConfigError is a fatal problem found before any work starts:
// a bad source path, conflicting credentials, a non-positive interval.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Msg)
}

// ConfigErrorf produces a *ConfigError for the named field.
func ConfigErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// RemoteExecError reports a remote command that exited with a non-zero status.
type RemoteExecError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *RemoteExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command %q exited with status %d: %s", e.Cmd, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("remote command %q exited with status %d", e.Cmd, e.ExitCode)
}

func (e *RemoteExecError) Is(target error) bool {
	return target == ErrRemoteExecution
}

// IsConfigError tells whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsBackendFatal tells whether err means a whole backend is unusable for the rest of a cycle,
// as opposed to a failure affecting a single file.
func IsBackendFatal(err error) bool {
	return errors.Is(err, ErrSessionUnavailable) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrRemoteUnreachable) ||
		errors.Is(err, ErrNotSupported)
}
