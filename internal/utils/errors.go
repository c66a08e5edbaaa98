package utils

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientPermissions = errors.New("insufficient permissions, run as root")
	ErrNotInitialized          = errors.New("node not initialized, run 'tronctl init' first")
	ErrNodeAlreadyRunning      = errors.New("node already running")
	ErrNodeNotRunning          = errors.New("node not running")
	ErrStartInProgress         = errors.New("another start or stop is in progress")
	ErrDownloadFailed          = errors.New("download failed")
	ErrChecksumMismatch        = errors.New("checksum mismatch")
	ErrSecurityViolation       = errors.New("security violation")
	ErrRPCFailed               = errors.New("rpc call failed")
	ErrProcess                 = errors.New("process operation failed")
	ErrConfig                  = errors.New("configuration error")
)

type DownloadError struct {
	URL string
	Msg string
	Err error
}

func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download of %s failed: %s", e.URL, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownloadFailed}
	}
	return []error{ErrDownloadFailed, e.Err}
}

type ChecksumMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("md5 mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// PathViolationError reports an archive entry that would land outside the
// extraction root.
type PathViolationError struct {
	Entry  string
	Reason string
}

func (e *PathViolationError) Error() string {
	return fmt.Sprintf("security violation: archive entry %q %s", e.Entry, e.Reason)
}

func (e *PathViolationError) Unwrap() error { return ErrSecurityViolation }

type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("node already running (pid %d)", e.PID)
}

func (e *AlreadyRunningError) Unwrap() error { return ErrNodeAlreadyRunning }

type ProcessError struct {
	Op  string
	PID int
	Err error
}

func (e *ProcessError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s (pid %d): %v", e.Op, e.PID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() []error { return []error{ErrProcess, e.Err} }

type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc call to %s failed: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() []error { return []error{ErrRPCFailed, e.Err} }

type IncompatibleJavaError struct {
	Required string
	Found    string
}

func (e *IncompatibleJavaError) Error() string {
	return fmt.Sprintf("incompatible java version: required %s, found %s", e.Required, e.Found)
}

func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
