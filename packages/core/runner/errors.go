package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

// CancellationError is returned when a run stops between steps because its
// context was cancelled.
type CancellationError struct {
	File string
	Step int
	Err  error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("%s: run cancelled before step %d: %v", e.File, e.Step+1, e.Err)
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

// LoadError reports a test file that could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// WaitError reports a wait_for target that never became ready.
type WaitError struct {
	URL     string
	Timeout time.Duration
	Status  int
	Err     error
}

func (e *WaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s not ready after %v: %v", e.URL, e.Timeout, e.Err)
	}
	return fmt.Sprintf("service %s not ready after %v: got status %d", e.URL, e.Timeout, e.Status)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// PhaseOf classifies a fatal run error.
func PhaseOf(err error) Phase {
	var (
		loadErr      *LoadError
		parseErr     *parser.ParseError
		resolveErr   *env.ResolutionError
		transportErr *http.TransportError
		cancelErr    *CancellationError
		waitErr      *WaitError
	)
	switch {
	case err == nil:
		return PhaseNone
	case errors.As(err, &cancelErr), errors.Is(err, context.Canceled):
		return PhaseCancel
	case errors.As(err, &loadErr):
		return PhaseLoad
	case errors.As(err, &waitErr):
		return PhaseWait
	case errors.As(err, &parseErr):
		return PhaseParse
	case errors.As(err, &resolveErr):
		return PhaseResolve
	case errors.As(err, &transportErr):
		return PhaseTransport
	default:
		return PhaseResolve
	}
}
