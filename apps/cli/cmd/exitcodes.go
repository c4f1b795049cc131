package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/testhost/packages/core/options"
)

// Exit codes for testhost CLI
const (
	// ExitSuccess indicates all tests passed, or failures were ignored
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed
	ExitTestFailure = 1

	// ExitUsageError indicates help was requested or the command line was incomplete
	ExitUsageError = 2

	// ExitConfigError indicates an option or config file error
	ExitConfigError = 3

	// ExitError indicates any other error, e.g. a faulted sink
	ExitError = 4

	// ExitCancelled indicates the run was interrupted
	ExitCancelled = 130
)

// exitError carries the status a command wants the process to exit with
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to a process exit status
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var oe *options.Error
	if errors.As(err, &oe) {
		return ExitConfigError
	}
	return ExitError
}
