package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// TAPFormatter formats test results in TAP (Test Anything Protocol) format.
// Every step is one test point.
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
}

type tapResult struct {
	number     int
	name       string
	passed     bool
	skipped    bool
	skipReason string
	error      string
	assertions []string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatResult(result *runner.FileVerdict) {
	for _, s := range result.Steps {
		f.testCount++
		tr := tapResult{
			number: f.testCount,
			name:   result.File + ": " + stepName(s),
			passed: s.Passed,
		}

		switch s.Status {
		case runner.StepSkipped:
			tr.skipped, tr.skipReason = true, "skipped"
		case runner.StepNotAttempted:
			tr.skipped, tr.skipReason = true, "not attempted"
		case runner.StepErrored:
			tr.error = errorText(s.Error)
		case runner.StepFailed:
			for _, a := range s.FailedAssertions() {
				tr.assertions = append(tr.assertions, fmt.Sprintf(
					"%s %s: expected %v, got %v", a.Subject, a.Operator, a.Expected, a.Actual))
			}
		}

		f.results = append(f.results, tr)
	}

	if result.Err != nil && result.Count(runner.StepErrored) == 0 {
		f.testCount++
		f.results = append(f.results, tapResult{
			number: f.testCount,
			name:   result.File + ": " + phaseLabel(result.Phase),
			error:  result.Err.Error(),
		})
	}
}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(summary *driver.Summary) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		if r.skipped {
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", r.number, r.name, r.skipReason)
			continue
		}

		if r.error != "" {
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(r.error))
			fmt.Fprintf(f.writer, "  severity: error\n")
			fmt.Fprintf(f.writer, "  ...\n")
			continue
		}

		if r.passed {
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)
			continue
		}
		fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
		if len(r.assertions) > 0 {
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  failures:\n")
			for _, a := range r.assertions {
				fmt.Fprintf(f.writer, "    - %s\n", escapeYAML(a))
			}
			fmt.Fprintf(f.writer, "  ...\n")
		}
	}

	if summary != nil && summary.Cancelled > 0 {
		fmt.Fprintf(f.writer, "# %d file(s) cancelled\n", summary.Cancelled)
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

func escapeYAML(s string) string {
	// Quote anything YAML would otherwise interpret.
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
