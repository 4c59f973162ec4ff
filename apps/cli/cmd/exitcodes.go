package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// Exit codes for the tkrun CLI
const (
	// ExitSuccess indicates all tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed
	ExitTestFailure = 1

	// ExitParseError indicates a file parsing error
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitResolutionError indicates a variable that could not be resolved
	ExitResolutionError = 5

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64

	// ExitCancelled indicates the run was interrupted
	ExitCancelled = 130
)

// exitError carries the process exit code for an error returned by a
// command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an error returned from a command to an exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitTestFailure
}

// phaseExitCode maps where a single file stopped to an exit code.
func phaseExitCode(phase runner.Phase) int {
	switch phase {
	case runner.PhaseNone:
		return ExitTestFailure
	case runner.PhaseLoad:
		return ExitUsageError
	case runner.PhaseParse:
		return ExitParseError
	case runner.PhaseResolve:
		return ExitResolutionError
	case runner.PhaseWait, runner.PhaseTransport:
		return ExitNetworkError
	case runner.PhaseCancel:
		return ExitCancelled
	default:
		return ExitTestFailure
	}
}

// usageArgs tags argument validation errors with the usage exit code.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withExitCode(ExitUsageError, validate(cmd, args))
	}
}
