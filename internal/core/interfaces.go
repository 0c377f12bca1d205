package core

import (
	"errors"
	"fmt"
)

// AuditOptions contains options for a single audit run
type AuditOptions struct {
	Serial           string   // adb device serial, empty for the default device
	Workers          int      // concurrent acquisition workers
	ExcludePackages  []string // packages always treated as compliant
	VersionQualified []string // packages queried as <name>_<versionCode>
	Only             string   // fuzzy package filter, empty for all
	KeepScratch      bool     // keep extracted APKs after the run
}

// ExitError carries a process exit code through the command tree
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WithExitCode wraps err so that main exits with code
func WithExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode extracts the exit code from err, defaulting to ExitGeneral
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}
