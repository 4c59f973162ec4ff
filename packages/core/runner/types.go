package runner

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/abdul-hamid-achik/tkrun/packages/assertions"
	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

// State is the position of a run in its lifecycle.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText lets encoders write the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type StepStatus string

const (
	StepPassed       StepStatus = "passed"
	StepFailed       StepStatus = "failed"
	StepErrored      StepStatus = "errored"
	StepSkipped      StepStatus = "skipped"
	StepNotAttempted StepStatus = "not-attempted"
)

// Phase names where a fatal error stopped a file.
type Phase string

const (
	PhaseNone      Phase = ""
	PhaseLoad      Phase = "load"
	PhaseParse     Phase = "parse"
	PhaseResolve   Phase = "resolve"
	PhaseWait      Phase = "wait"
	PhaseTransport Phase = "transport"
	PhaseCancel    Phase = "cancel"
)

// ExecState holds the fields a run mutates. It is only ever built by
// FreshState.
type ExecState struct {
	Plan    *parser.Plan
	Vars    *env.VariableTable
	Steps   []*StepVerdict
	State   State
	Current int
}

// FreshState returns the execution fields for a run that has not started.
func FreshState() ExecState {
	return ExecState{
		Vars:    env.NewVariableTable(),
		Steps:   []*StepVerdict{},
		State:   StatePending,
		Current: -1,
	}
}

// TestContext is one test document and everything a single run of it
// accumulates. It must not be shared between files.
type TestContext struct {
	File   string
	Source string
	ExecState
}

// NewTestContext builds a context from a file identifier and raw source.
// File does not have to name a real path.
func NewTestContext(file, source string) *TestContext {
	return &TestContext{
		File:      file,
		Source:    source,
		ExecState: FreshState(),
	}
}

// Reset discards the results of a previous run so the context can be run
// again. The source is re-parsed.
func (tc *TestContext) Reset() {
	tc.ExecState = FreshState()
}

type StepVerdict struct {
	Name        string
	Index       int
	Status      StepStatus
	Passed      bool
	Optional    bool
	Error       error
	Duration    time.Duration
	Attempts    int
	Request     *http.Request
	Response    *http.Response
	Assertions  []*assertions.Result
	Captures    *orderedmap.OrderedMap[string, any]
	Diagnostics []string
}

// FailedAssertions returns the results that did not pass.
func (s *StepVerdict) FailedAssertions() []*assertions.Result {
	var failed []*assertions.Result
	for _, a := range s.Assertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}
	return failed
}

type FileVerdict struct {
	File     string
	State    State
	Passed   bool
	Steps    []*StepVerdict
	Duration time.Duration
	Err      error
	Phase    Phase
	Warnings []*parser.Warning
}

// Count returns how many steps ended with status.
func (v *FileVerdict) Count(status StepStatus) int {
	n := 0
	for _, s := range v.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// FailedVerdict is the verdict for a file that never reached execution,
// e.g. because it could not be read.
func FailedVerdict(file string, phase Phase, err error) *FileVerdict {
	return &FileVerdict{
		File:  file,
		State: StateFailed,
		Err:   err,
		Phase: phase,
	}
}
